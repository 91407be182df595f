package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/audio"
	"github.com/rschmaelzle/aeneas/internal/language"
)

// defaultPiperSampleRate 是大多数 piper 语音模型的输出采样率。
const defaultPiperSampleRate = 22050

// PiperConfig piper CLI 配置。
type PiperConfig struct {
	Binary     string   // 为空时使用 "piper"
	ModelPath  string   // .onnx 语音模型
	SampleRate int      // 模型输出采样率
	Languages  []string // 模型能朗读的语言
}

// PiperEngine 使用 piper CLI 子进程合成，可作为 espeak 之外的纯软件后端。
// piper 以 --output-raw 输出 s16le 单声道 PCM。
type PiperEngine struct {
	binary     string
	modelPath  string
	sampleRate int
	languages  language.Set
	log        *zap.Logger
}

var _ Engine = (*PiperEngine)(nil)

// NewPiperEngine 创建 piper 引擎。
func NewPiperEngine(cfg PiperConfig, log *zap.Logger) *PiperEngine {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultPiperSampleRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PiperEngine{
		binary:     cfg.Binary,
		modelPath:  cfg.ModelPath,
		sampleRate: cfg.SampleRate,
		languages:  language.NewSet(cfg.Languages...),
		log:        log,
	}
}

// Name 实现 Engine 接口。
func (p *PiperEngine) Name() string { return "piper" }

// IsLanguageSupported 实现 Engine 接口。
func (p *PiperEngine) IsLanguageSupported(lang string) bool {
	return p.languages.Contains(lang)
}

// Synthesize 实现 Engine 接口。
func (p *PiperEngine) Synthesize(ctx context.Context, text, lang string) ([]float32, int, error) {
	if p.modelPath == "" {
		return nil, 0, unavailable(p.Name(), fmt.Errorf("未配置模型路径"))
	}

	cmd := exec.CommandContext(ctx, p.binary, "--model", p.modelPath, "--output-raw")
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			p.log.Warn("[tts] piper stderr", zap.String("stderr", stderr.String()))
		}
		return nil, 0, classify(p.Name(), err)
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, 0, fmt.Errorf("[tts] piper: 未收到音频数据 (lang=%s)", lang)
	}

	samples := audio.BytesToFloat32(pcm)
	p.log.Debug("[tts] piper 合成完成", zap.Int("samples", len(samples)))
	return samples, p.sampleRate, nil
}
