package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"
	"go.uber.org/zap"

	"github.com/rschmaelzle/aeneas/internal/language"
)

// 腾讯云 PrimaryLanguage 取值
const (
	tencentChinese int64 = 1
	tencentEnglish int64 = 2
)

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
	Speed     float64
}

// TencentEngine 使用腾讯云 TTS 合成，只支持中文和英文。
type TencentEngine struct {
	client    *tts.Client
	voiceType int64
	speed     float64
	log       *zap.Logger
}

var _ Engine = (*TencentEngine)(nil)

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg TencentConfig, log *zap.Logger) (*TencentEngine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建腾讯云 TTS 客户端失败: %w", err)
	}

	log.Info("[tts] 腾讯云 TTS 引擎已初始化",
		zap.Int64("voice", cfg.VoiceType), zap.String("region", cfg.Region))

	return &TencentEngine{
		client:    client,
		voiceType: cfg.VoiceType,
		speed:     cfg.Speed,
		log:       log,
	}, nil
}

// Name 实现 Engine 接口。
func (e *TencentEngine) Name() string { return "tencent" }

func tencentLanguage(lang string) (int64, bool) {
	switch code, _ := language.Normalize(lang); code {
	case "zho", "cmn":
		return tencentChinese, true
	case "eng":
		return tencentEnglish, true
	}
	return 0, false
}

// IsLanguageSupported 实现 Engine 接口。
func (e *TencentEngine) IsLanguageSupported(lang string) bool {
	_, ok := tencentLanguage(lang)
	return ok
}

// Synthesize 实现 Engine 接口。未列出的语言按中文请求。
func (e *TencentEngine) Synthesize(ctx context.Context, text, lang string) ([]float32, int, error) {
	primary, ok := tencentLanguage(lang)
	if !ok {
		primary = tencentChinese
	}

	request := tts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(text)
	request.SessionId = common.StringPtr(uuid.New().String())
	request.VoiceType = common.Int64Ptr(e.voiceType)
	request.PrimaryLanguage = common.Int64Ptr(primary)
	request.Codec = common.StringPtr("mp3")
	request.Speed = common.Float64Ptr(e.speed)
	request.Volume = common.Float64Ptr(5.0)

	response, err := e.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		return nil, 0, classify(e.Name(), err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return nil, 0, fmt.Errorf("[tts] 腾讯云 TTS: 未返回音频数据")
	}

	mp3Data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] Base64 解码失败: %w", err)
	}

	samples, rate, err := decodeMP3(ctx, mp3Data)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] 腾讯云 TTS: %w", err)
	}

	e.log.Debug("[tts] 腾讯云 TTS 合成完成",
		zap.Int("chars", len([]rune(text))), zap.Int("samples", len(samples)), zap.Int("sample_rate", rate))
	return samples, rate, nil
}
