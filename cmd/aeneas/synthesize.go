package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/audio"
	"github.com/rschmaelzle/aeneas/internal/config"
	"github.com/rschmaelzle/aeneas/internal/database"
	"github.com/rschmaelzle/aeneas/internal/language"
	"github.com/rschmaelzle/aeneas/internal/synth"
	"github.com/rschmaelzle/aeneas/internal/textfile"
)

type synthesizeOptions struct {
	quitAfter     float64
	backwards     bool
	forcePure     bool
	noFallback    bool
	allowUnlisted bool
	format        string
	language      string
	anchors       string
	anchorsFormat string
	noHistory     bool
}

func newSynthesizeCommand(global *globalOptions) *cobra.Command {
	opts := &synthesizeOptions{}

	cmd := &cobra.Command{
		Use:     "synthesize <text-file> <output.wav>",
		Aliases: []string{"synth"},
		Short:   "Synthesize a text file into a WAV file and print the time anchors",
		Example: `aeneas synthesize book.txt book.wav --language eng --anchors book.json
aeneas synthesize --format parsed --quit-after 60 --backwards chapter.txt tail.wav`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return &usageError{err}
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// 监听系统信号，在片段边界停止
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					log.Warn("[main] 收到信号，正在停止", zap.String("signal", sig.String()))
					cancel()
				case <-ctx.Done():
				}
			}()

			return runSynthesize(ctx, cmd.OutOrStdout(), cfg, opts, args[0], args[1], log)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.quitAfter, "quit-after", 0, "stop at the fragment boundary after this many seconds (0 = no limit)")
	f.BoolVar(&opts.backwards, "backwards", false, "synthesize fragments from last to first")
	f.BoolVar(&opts.forcePure, "force-pure", false, "skip the native engine and use the pure one")
	f.BoolVar(&opts.noFallback, "no-fallback", false, "do not retry with the pure engine when the native one is unavailable")
	f.BoolVar(&opts.allowUnlisted, "allow-unlisted-languages", false, "do not reject languages the engine does not list")
	f.StringVarP(&opts.format, "format", "f", string(textfile.FormatPlain), "text file format: plain, parsed, subtitles, json")
	f.StringVarP(&opts.language, "language", "l", "", "language of fragments that do not declare one (e.g. eng, en)")
	f.StringVarP(&opts.anchors, "anchors", "o", "", "write anchors to this file instead of stdout")
	f.StringVar(&opts.anchorsFormat, "anchors-format", "", "anchors format: json, tsv")
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record this run in the history database")

	return cmd
}

// apply 用显式给出的命令行参数覆盖配置。
func (o *synthesizeOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("quit-after") {
		cfg.Synthesis.QuitAfter = o.quitAfter
	}
	if f.Changed("backwards") {
		cfg.Synthesis.Backwards = o.backwards
	}
	if f.Changed("force-pure") {
		cfg.Synthesis.ForcePure = o.forcePure
	}
	if f.Changed("no-fallback") {
		enabled := !o.noFallback
		cfg.Synthesis.AllowFallback = &enabled
	}
	if f.Changed("allow-unlisted-languages") {
		cfg.Synthesis.AllowUnlistedLanguages = o.allowUnlisted
	}
	if o.anchorsFormat != "" {
		cfg.Output.AnchorsFormat = o.anchorsFormat
	}
	if o.noHistory {
		cfg.Database.Enabled = false
	}

	if _, err := textfile.ParseFormat(o.format); err != nil {
		return err
	}
	if _, err := synth.ParseAnchorFormat(cfg.Output.AnchorsFormat); err != nil {
		return err
	}
	if _, err := cfg.Synthesis.Options(); err != nil {
		return err
	}
	return nil
}

func runSynthesize(ctx context.Context, out io.Writer, cfg *config.Config, o *synthesizeOptions, textPath, destination string, log *zap.Logger) error {
	format, _ := textfile.ParseFormat(o.format)
	anchorsFormat, _ := synth.ParseAnchorFormat(cfg.Output.AnchorsFormat)
	synthOpts, err := cfg.Synthesis.Options()
	if err != nil {
		return err
	}

	lang := o.language
	if lang != "" {
		if code, ok := language.Normalize(lang); ok {
			lang = code
		}
	}
	tf, err := textfile.Load(textPath, format, lang)
	if err != nil {
		return err
	}

	eng, err := newEngines(cfg.TTS, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	s, err := synth.New(eng.native, eng.pure,
		synth.WithLogger(log),
		synth.WithSinkOpener(func(dest string) (audio.Sink, error) {
			return audio.CreateWAV(dest, cfg.Synthesis.SampleRate)
		}))
	if err != nil {
		return err
	}

	log.Info("[main] 开始合成",
		zap.String("text_file", textPath),
		zap.Int("fragments", tf.Len()),
		zap.Stringer("direction", synthOpts.Direction),
		zap.Duration("quit_after", synthOpts.QuitAfter))

	result, err := s.Synthesize(ctx, tf, destination, synthOpts)
	if err != nil {
		var fe *synth.FragmentError
		if errors.As(err, &fe) {
			log.Error("[main] 片段合成失败", zap.String("id", fe.FragmentID), zap.String("language", fe.Language), zap.Error(fe.Err))
		}
		return err
	}

	if o.anchors != "" {
		if err := synth.SaveAnchors(o.anchors, result, anchorsFormat); err != nil {
			return err
		}
		log.Info("[main] 锚点已保存", zap.String("path", o.anchors))
	} else if err := synth.WriteAnchors(out, result, anchorsFormat); err != nil {
		return err
	}

	if cfg.Database.Enabled {
		recordRun(cfg.Database.Path, textPath, destination, result, log)
	}
	return nil
}

// recordRun 保存合成历史。失败只记录日志，不影响已完成的合成。
func recordRun(dbPath, textPath, destination string, result *synth.Result, log *zap.Logger) {
	db, err := database.Open(dbPath)
	if err != nil {
		log.Warn("[main] 打开历史数据库失败", zap.Error(err))
		return
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Warn("[main] 迁移历史数据库失败", zap.Error(err))
		return
	}
	id, err := db.RecordRun(textPath, destination, result)
	if err != nil {
		log.Warn("[main] 保存合成历史失败", zap.Error(err))
		return
	}
	log.Debug("[main] 合成历史已保存", zap.String("run_id", id))
}
