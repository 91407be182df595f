package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/language"
)

// SherpaConfig 本地 sherpa-onnx VITS 模型配置。
type SherpaConfig struct {
	Model      string   // .onnx 模型文件
	Tokens     string   // tokens.txt
	Lexicon    string   // 可选
	DataDir    string   // espeak-ng-data 目录（piper 类模型需要）
	NumThreads int      // 推理线程数
	SpeakerID  int      // 多说话人模型的说话人编号
	Speed      float32  // 语速，1.0 为正常
	Languages  []string // 模型能朗读的语言
}

// SherpaEngine 使用 sherpa-onnx 离线 TTS 在进程内合成，是默认的本地（native）后端。
// 模型缺失或加载失败时引擎仍可创建，但每次合成都返回 ErrBackendUnavailable。
type SherpaEngine struct {
	mu        sync.Mutex
	tts       *sherpa.OfflineTts
	loadErr   error
	speakerID int
	speed     float32
	languages language.Set
	log       *zap.Logger
}

var _ Engine = (*SherpaEngine)(nil)

// NewSherpaEngine 加载模型并创建引擎。
func NewSherpaEngine(cfg SherpaConfig, log *zap.Logger) *SherpaEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	e := &SherpaEngine{
		speakerID: cfg.SpeakerID,
		speed:     cfg.Speed,
		languages: language.NewSet(cfg.Languages...),
		log:       log,
	}

	for _, p := range []string{cfg.Model, cfg.Tokens} {
		if p == "" {
			e.loadErr = errors.New("未配置模型文件")
			break
		}
		if _, err := os.Stat(p); err != nil {
			e.loadErr = err
			break
		}
	}
	if e.loadErr != nil {
		log.Warn("[tts] sherpa-onnx 模型不可用", zap.Error(e.loadErr))
		return e
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = cfg.Model
	config.Model.Vits.Tokens = cfg.Tokens
	config.Model.Vits.Lexicon = cfg.Lexicon
	config.Model.Vits.DataDir = cfg.DataDir
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = cfg.NumThreads
	config.Model.Provider = "cpu"
	config.MaxNumSentences = 1

	e.tts = sherpa.NewOfflineTts(&config)
	if e.tts == nil {
		e.loadErr = fmt.Errorf("创建离线 TTS 失败，模型: %s", cfg.Model)
		log.Warn("[tts] sherpa-onnx 模型加载失败", zap.Error(e.loadErr))
		return e
	}

	log.Info("[tts] sherpa-onnx 引擎已初始化",
		zap.String("model", cfg.Model), zap.Int("threads", cfg.NumThreads))
	return e
}

// Name 实现 Engine 接口。
func (e *SherpaEngine) Name() string { return "sherpa" }

// IsLanguageSupported 实现 Engine 接口。
func (e *SherpaEngine) IsLanguageSupported(lang string) bool {
	return e.languages.Contains(lang)
}

// Synthesize 实现 Engine 接口。语言由模型决定，lang 只用于日志。
func (e *SherpaEngine) Synthesize(ctx context.Context, text, lang string) ([]float32, int, error) {
	if e.loadErr != nil {
		return nil, 0, unavailable(e.Name(), e.loadErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tts == nil {
		return nil, 0, unavailable(e.Name(), errors.New("引擎已关闭"))
	}

	generated := e.tts.Generate(text, e.speakerID, e.speed)
	if generated == nil || len(generated.Samples) == 0 {
		return nil, 0, fmt.Errorf("[tts] sherpa-onnx: 未生成音频 (lang=%s)", lang)
	}

	e.log.Debug("[tts] sherpa-onnx 合成完成",
		zap.Int("chars", len([]rune(text))),
		zap.Int("samples", len(generated.Samples)),
		zap.Int("sample_rate", generated.SampleRate))
	return generated.Samples, generated.SampleRate, nil
}

// Close 释放模型。
func (e *SherpaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
}
