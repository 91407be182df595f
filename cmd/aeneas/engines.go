package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/config"
	"github.com/rschmaelzle/aeneas/internal/tts"
)

// engines 持有本次运行使用的两个后端。
type engines struct {
	native tts.Engine // 可能为 nil
	pure   tts.Engine
	closer func()
}

func (e *engines) Close() {
	if e.closer != nil {
		e.closer()
	}
}

// newNativeEngine 根据配置创建首选引擎。"none" 表示不使用本地引擎。
func newNativeEngine(cfg config.TTSConfig, log *zap.Logger) (tts.Engine, func(), error) {
	switch strings.ToLower(cfg.Native) {
	case "sherpa":
		e := tts.NewSherpaEngine(tts.SherpaConfig{
			Model:      cfg.Sherpa.Model,
			Tokens:     cfg.Sherpa.Tokens,
			Lexicon:    cfg.Sherpa.Lexicon,
			DataDir:    cfg.Sherpa.DataDir,
			NumThreads: cfg.Sherpa.NumThreads,
			SpeakerID:  cfg.Sherpa.SpeakerID,
			Speed:      cfg.Sherpa.Speed,
			Languages:  cfg.Sherpa.Languages,
		}, log)
		return e, e.Close, nil
	case "tencent":
		e, err := tts.NewTencentEngine(tts.TencentConfig{
			SecretID:  cfg.Tencent.SecretID,
			SecretKey: cfg.Tencent.SecretKey,
			VoiceType: cfg.Tencent.VoiceType,
			Region:    cfg.Tencent.Region,
			Speed:     cfg.Tencent.Speed,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return e, nil, nil
	case "edge":
		return tts.NewEdgeEngine(cfg.Edge.Voices, log), nil, nil
	case "none", "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("不支持的本地 TTS 引擎: %s", cfg.Native)
	}
}

// newPureEngine 根据配置创建纯软件引擎。
func newPureEngine(cfg config.TTSConfig, log *zap.Logger) (tts.Engine, error) {
	switch strings.ToLower(cfg.Pure) {
	case "espeak", "espeak-ng", "":
		return tts.NewEspeakEngine(cfg.Espeak.Binary, log), nil
	case "piper":
		return tts.NewPiperEngine(tts.PiperConfig{
			Binary:     cfg.Piper.Binary,
			ModelPath:  cfg.Piper.ModelPath,
			SampleRate: cfg.Piper.SampleRate,
			Languages:  cfg.Piper.Languages,
		}, log), nil
	default:
		return nil, fmt.Errorf("不支持的纯软件 TTS 引擎: %s", cfg.Pure)
	}
}

func newEngines(cfg config.TTSConfig, log *zap.Logger) (*engines, error) {
	pure, err := newPureEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	native, closer, err := newNativeEngine(cfg, log)
	if err != nil {
		return nil, err
	}
	return &engines{native: native, pure: pure, closer: closer}, nil
}
