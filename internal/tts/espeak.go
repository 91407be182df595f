package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/audio"
	"github.com/rschmaelzle/aeneas/internal/language"
)

// EspeakEngine 通过 espeak-ng 子进程合成，是始终可用的纯软件（pure）后端。
// 每个片段写入一个临时 WAV 文件再读回。
type EspeakEngine struct {
	binary string
	log    *zap.Logger
}

var _ Engine = (*EspeakEngine)(nil)

// NewEspeakEngine 创建 espeak 引擎。binary 为空时使用 "espeak-ng"。
func NewEspeakEngine(binary string, log *zap.Logger) *EspeakEngine {
	if binary == "" {
		binary = "espeak-ng"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EspeakEngine{binary: binary, log: log}
}

// Name 实现 Engine 接口。
func (e *EspeakEngine) Name() string { return "espeak" }

// IsLanguageSupported 实现 Engine 接口：语言表中的语言都有 espeak 语音。
func (e *EspeakEngine) IsLanguageSupported(lang string) bool {
	return language.IsListed(lang)
}

// Synthesize 实现 Engine 接口。
func (e *EspeakEngine) Synthesize(ctx context.Context, text, lang string) ([]float32, int, error) {
	voice := language.EspeakVoice(lang)

	tmp, err := os.CreateTemp("", "aeneas-espeak-*.wav")
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] espeak: 创建临时文件失败: %w", err)
	}
	wavPath := tmp.Name()
	tmp.Close()
	defer os.Remove(wavPath)

	cmd := exec.CommandContext(ctx, e.binary, "-v", voice, "-w", wavPath, "--stdin")
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			e.log.Warn("[tts] espeak stderr", zap.String("stderr", stderr.String()))
		}
		return nil, 0, classify(e.Name(), err)
	}

	samples, rate, err := audio.ReadWAV(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] espeak: %w", err)
	}

	e.log.Debug("[tts] espeak 合成完成",
		zap.String("voice", voice), zap.Int("samples", len(samples)), zap.Int("sample_rate", rate))
	return samples, rate, nil
}
