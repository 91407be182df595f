package tts

import (
	"bytes"
	"context"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/language"
)

const defaultEdgeVoice = "en-US-AriaNeural"

// EdgeEngine 使用微软 Edge 在线 TTS 合成，按片段语言选择语音。
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码为 PCM。
type EdgeEngine struct {
	voices map[string]string // ISO 639-3 -> Edge 语音名
	log    *zap.Logger
}

var _ Engine = (*EdgeEngine)(nil)

// NewEdgeEngine 创建 Edge TTS 引擎。voices 的键可以是任意可规整的语言代码。
func NewEdgeEngine(voices map[string]string, log *zap.Logger) *EdgeEngine {
	if log == nil {
		log = zap.NewNop()
	}
	normalized := make(map[string]string, len(voices))
	for lang, voice := range voices {
		code, _ := language.Normalize(lang)
		normalized[code] = voice
	}
	return &EdgeEngine{voices: normalized, log: log}
}

// Name 实现 Engine 接口。
func (e *EdgeEngine) Name() string { return "edge" }

// IsLanguageSupported 实现 Engine 接口：只支持配置了语音的语言。
func (e *EdgeEngine) IsLanguageSupported(lang string) bool {
	_, ok := e.voice(lang)
	return ok
}

func (e *EdgeEngine) voice(lang string) (string, bool) {
	code, _ := language.Normalize(lang)
	v, ok := e.voices[code]
	return v, ok
}

// Synthesize 实现 Engine 接口。未配置语音的语言使用 defaultEdgeVoice。
func (e *EdgeEngine) Synthesize(ctx context.Context, text, lang string) ([]float32, int, error) {
	voice, ok := e.voice(lang)
	if !ok {
		voice = defaultEdgeVoice
	}
	e.log.Debug("[tts] edge-tts 正在合成",
		zap.Int("chars", len([]rune(text))), zap.String("voice", voice))

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return nil, 0, classify(e.Name(), err)
	}

	ch, err := comm.Stream()
	if err != nil {
		// 建立 websocket 失败基本都是网络问题
		return nil, 0, unavailable(e.Name(), err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	samples, rate, err := decodeMP3(ctx, mp3Buf.Bytes())
	if err != nil {
		return nil, 0, classify(e.Name(), err)
	}

	e.log.Debug("[tts] edge-tts 合成完成", zap.Int("samples", len(samples)), zap.Int("sample_rate", rate))
	return samples, rate, nil
}
