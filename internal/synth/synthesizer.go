// Package synth 将有序的文本片段合成为一个连续的音频文件，
// 并为每个片段记录其在音频中的起止时间（锚点）。
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/audio"
	"github.com/rschmaelzle/aeneas/internal/textfile"
	"github.com/rschmaelzle/aeneas/internal/tts"
)

// FragmentSource 提供有序、有限的片段序列。
type FragmentSource interface {
	Fragments() []textfile.Fragment
}

// Direction 片段的合成顺序。
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Options 单次合成的选项。
type Options struct {
	// QuitAfter 累计时长达到该值后在片段边界停止；0 表示不限。
	QuitAfter time.Duration
	// Direction 合成顺序。
	Direction Direction
	// ForcePure 跳过本地引擎，直接使用纯软件引擎。
	ForcePure bool
	// AllowFallback 本地引擎不可用时改用纯软件引擎重试一次。
	AllowFallback bool
	// AllowUnlistedLanguages 不拒绝引擎未列出的语言。
	AllowUnlistedLanguages bool
}

// Anchor 是一个片段在输出音频中的时间区间 [Begin, End)。
type Anchor struct {
	FragmentID string
	Begin      time.Duration
	End        time.Duration
}

// BeginSeconds 返回以秒计的起点。
func (a Anchor) BeginSeconds() float64 { return a.Begin.Seconds() }

// EndSeconds 返回以秒计的终点。
func (a Anchor) EndSeconds() float64 { return a.End.Seconds() }

// Duration 返回区间长度。
func (a Anchor) Duration() time.Duration { return a.End - a.Begin }

// Result 是一次成功合成的结果。
type Result struct {
	TotalDuration time.Duration
	Anchors       []Anchor // 按访问顺序排列
	EarlyStop     bool
	Fragments     int // 实际访问的片段数
	Characters    int // 实际合成的字符数
	FallbackCount int // 本地引擎失败后由纯软件引擎完成的片段数
}

// SinkOpener 打开 destination 处的输出。
type SinkOpener func(destination string) (audio.Sink, error)

// Synthesizer 驱动整次合成。可以顺序复用，但不支持并发写同一输出。
type Synthesizer struct {
	native   tts.Engine
	pure     tts.Engine
	openSink SinkOpener
	log      *zap.Logger
}

// Option 配置 Synthesizer。
type Option func(*Synthesizer)

// WithLogger 注入结构化日志。默认不输出。
func WithLogger(log *zap.Logger) Option {
	return func(s *Synthesizer) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSinkOpener 替换默认的 WAV 输出。
func WithSinkOpener(open SinkOpener) Option {
	return func(s *Synthesizer) {
		if open != nil {
			s.openSink = open
		}
	}
}

// DefaultSampleRate 是没有任何样本时空 WAV 文件使用的采样率。
const DefaultSampleRate = 22050

// New 创建合成器。pure 必须非 nil；native 为 nil 时所有片段都走纯软件引擎。
func New(native, pure tts.Engine, opts ...Option) (*Synthesizer, error) {
	if pure == nil {
		return nil, fmt.Errorf("[synth] 纯软件引擎不能为空: %w", ErrInvalidInput)
	}
	s := &Synthesizer{
		native: native,
		pure:   pure,
		openSink: func(destination string) (audio.Sink, error) {
			return audio.CreateWAV(destination, DefaultSampleRate)
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize 按 opts 合成 source 中的片段并写入 destination。
// 任何错误都使整次调用失败，此时 destination 的内容无效。
func (s *Synthesizer) Synthesize(ctx context.Context, source FragmentSource, destination string, opts Options) (*Result, error) {
	fragments, err := validate(source, opts)
	if err != nil {
		return nil, err
	}
	if !CanBeWritten(destination) {
		return nil, fmt.Errorf("[synth] %s: %w", destination, ErrDestinationUnwritable)
	}

	sink, err := s.openSink(destination)
	if err != nil {
		return nil, fmt.Errorf("[synth] %w: %w", ErrDestinationUnwritable, err)
	}

	result, err := s.run(ctx, fragments, sink, opts)
	if err != nil {
		sink.Abort()
		return nil, err
	}

	if err := sink.Finalize(); err != nil {
		return nil, fmt.Errorf("[synth] %w: %w", ErrDestinationWriteFailed, err)
	}

	s.log.Info("[synth] 合成完成",
		zap.String("destination", destination),
		zap.Int("fragments", result.Fragments),
		zap.Duration("total", result.TotalDuration),
		zap.Bool("early_stop", result.EarlyStop),
		zap.Int("fallbacks", result.FallbackCount))
	return result, nil
}

func validate(source FragmentSource, opts Options) ([]textfile.Fragment, error) {
	if source == nil {
		return nil, fmt.Errorf("[synth] 片段来源为空: %w", ErrInvalidInput)
	}
	if opts.QuitAfter < 0 {
		return nil, fmt.Errorf("[synth] quit_after 必须为正数: %w", ErrInvalidInput)
	}
	if opts.Direction != Forward && opts.Direction != Backward {
		return nil, fmt.Errorf("[synth] 未知的合成方向 %v: %w", opts.Direction, ErrInvalidInput)
	}

	fragments := source.Fragments()
	seen := make(map[string]struct{}, len(fragments))
	for i, f := range fragments {
		if f.ID == "" {
			return nil, fmt.Errorf("[synth] 第 %d 个片段 ID 为空: %w", i+1, ErrInvalidInput)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("[synth] 片段 ID 重复: %s: %w", f.ID, ErrInvalidInput)
		}
		seen[f.ID] = struct{}{}
	}
	return fragments, nil
}

// visitOrder 返回片段下标的访问顺序。
func visitOrder(n int, dir Direction) []int {
	order := make([]int, n)
	for i := range order {
		if dir == Backward {
			order[i] = n - 1 - i
		} else {
			order[i] = i
		}
	}
	return order
}

func (s *Synthesizer) run(ctx context.Context, fragments []textfile.Fragment, sink audio.Sink, opts Options) (*Result, error) {
	order := visitOrder(len(fragments), opts.Direction)
	result := &Result{Anchors: make([]Anchor, 0, len(fragments))}
	var cumulative time.Duration

	for n, idx := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("[synth] 合成被取消: %w", err)
		}
		frag := fragments[idx]

		if !opts.AllowUnlistedLanguages && !s.first(opts).IsLanguageSupported(frag.Language) {
			return nil, &FragmentError{FragmentID: frag.ID, Language: frag.Language, Err: ErrUnsupportedLanguage}
		}

		var d time.Duration
		if frag.Text != "" {
			samples, rate, fellBack, err := s.synthesizeOne(ctx, frag, opts)
			if err != nil {
				return nil, &FragmentError{FragmentID: frag.ID, Language: frag.Language, Err: err}
			}
			if err := sink.Append(samples, rate); err != nil {
				return nil, fmt.Errorf("[synth] 片段 %s: %w: %w", frag.ID, ErrDestinationWriteFailed, err)
			}
			d = samplesDuration(len(samples), rate)
			result.Characters += utf8.RuneCountInString(frag.Text)
			if fellBack {
				result.FallbackCount++
			}
		}

		result.Anchors = append(result.Anchors, Anchor{FragmentID: frag.ID, Begin: cumulative, End: cumulative + d})
		cumulative += d
		result.Fragments++

		s.log.Debug("[synth] 片段完成",
			zap.String("id", frag.ID),
			zap.Duration("duration", d),
			zap.Duration("cumulative", cumulative))

		if opts.QuitAfter > 0 && cumulative >= opts.QuitAfter {
			result.EarlyStop = n < len(order)-1
			if result.EarlyStop {
				s.log.Info("[synth] 达到时长上限，提前结束",
					zap.Duration("quit_after", opts.QuitAfter), zap.Int("visited", result.Fragments))
			}
			break
		}
	}

	result.TotalDuration = cumulative
	return result, nil
}

// first 返回片段首先交给的引擎。
func (s *Synthesizer) first(opts Options) tts.Engine {
	if opts.ForcePure || s.native == nil {
		return s.pure
	}
	return s.native
}

// synthesizeOne 合成一个片段；本地引擎不可用且允许回退时，用纯软件引擎重试一次。
func (s *Synthesizer) synthesizeOne(ctx context.Context, frag textfile.Fragment, opts Options) ([]float32, int, bool, error) {
	engine := s.first(opts)
	samples, rate, err := engine.Synthesize(ctx, frag.Text, frag.Language)
	if err == nil {
		return samples, rate, false, checkRate(rate)
	}

	if engine == s.pure || !opts.AllowFallback || !errors.Is(err, tts.ErrBackendUnavailable) {
		return nil, 0, false, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	s.log.Warn("[synth] 本地引擎不可用，改用纯软件引擎",
		zap.String("id", frag.ID),
		zap.String("native", engine.Name()),
		zap.String("pure", s.pure.Name()),
		zap.Error(err))

	samples, rate, err = s.pure.Synthesize(ctx, frag.Text, frag.Language)
	if err != nil {
		return nil, 0, true, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	return samples, rate, true, checkRate(rate)
}

func checkRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("%w: 引擎返回了无效的采样率 %d", ErrSynthesisFailed, rate)
	}
	return nil
}

// samplesDuration 把样本数换算为时长。
func samplesDuration(samples, rate int) time.Duration {
	return time.Duration(int64(samples) * int64(time.Second) / int64(rate))
}

// CanBeWritten 判断 path 能否被创建或截断：父目录存在且可写，path 本身不是目录。
// 探测时新建的文件会被删除，已存在的文件保持原样。
func CanBeWritten(path string) bool {
	if path == "" {
		return false
	}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return false
		}
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return false
		}
		f.Close()
		return true
	}

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false
	}
	f.Close()
	_ = os.Remove(path)
	return true
}
