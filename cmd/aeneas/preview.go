package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/audio"
	"github.com/rschmaelzle/aeneas/internal/synth"
)

func newPreviewCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "preview <audio.wav> <anchors.json> <fragment-id>",
		Short:   "Play the audio span of one fragment",
		Example: `aeneas preview book.wav book.json f000003`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}

			anchors, err := synth.LoadAnchors(args[1])
			if err != nil {
				return err
			}
			anchor, ok := synth.FindAnchor(anchors, args[2])
			if !ok {
				return &usageError{fmt.Errorf("片段 %s 不在锚点文件中", args[2])}
			}

			samples, rate, err := audio.ReadWAV(args[0])
			if err != nil {
				return err
			}

			player, err := audio.NewPlayer(log)
			if err != nil {
				return err
			}
			defer player.Close()

			log.Info("[main] 播放片段",
				zap.String("id", anchor.FragmentID),
				zap.Duration("begin", anchor.Begin),
				zap.Duration("end", anchor.End))
			return player.PlaySpan(cmd.Context(), samples, rate, anchor.Begin, anchor.End)
		},
	}
}
