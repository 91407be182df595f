package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rschmaelzle/aeneas/internal/synth"
)

// Config 是 aeneas 的顶层配置结构。
type Config struct {
	TTS       TTSConfig       `yaml:"tts"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Output    OutputConfig    `yaml:"output"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

// TTSConfig 语音合成后端配置。
// Native 为首选引擎，Pure 为纯软件引擎，用于强制模式和回退。
type TTSConfig struct {
	Native  string        `yaml:"native" env:"AENEAS_TTS_NATIVE"` // sherpa, tencent, edge, none
	Pure    string        `yaml:"pure" env:"AENEAS_TTS_PURE"`     // espeak, piper
	Sherpa  SherpaConfig  `yaml:"sherpa"`
	Tencent TencentConfig `yaml:"tencent"`
	Edge    EdgeConfig    `yaml:"edge"`
	Espeak  EspeakConfig  `yaml:"espeak"`
	Piper   PiperConfig   `yaml:"piper"`
}

// SherpaConfig sherpa-onnx 离线模型配置。
type SherpaConfig struct {
	Model      string   `yaml:"model" env:"AENEAS_SHERPA_MODEL"`
	Tokens     string   `yaml:"tokens" env:"AENEAS_SHERPA_TOKENS"`
	Lexicon    string   `yaml:"lexicon"`
	DataDir    string   `yaml:"data_dir"`
	NumThreads int      `yaml:"num_threads"`
	SpeakerID  int      `yaml:"speaker_id"`
	Speed      float32  `yaml:"speed"`
	Languages  []string `yaml:"languages"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string  `yaml:"secret_id" env:"AENEAS_TENCENT_SECRET_ID"`
	SecretKey string  `yaml:"secret_key" env:"AENEAS_TENCENT_SECRET_KEY"`
	VoiceType int64   `yaml:"voice_type"`
	Region    string  `yaml:"region"`
	Speed     float64 `yaml:"speed"`
}

// EdgeConfig Edge TTS 配置：语言代码到语音名的映射。
type EdgeConfig struct {
	Voices map[string]string `yaml:"voices"`
}

// EspeakConfig espeak-ng 配置。
type EspeakConfig struct {
	Binary string `yaml:"binary" env:"AENEAS_ESPEAK_BINARY"`
}

// PiperConfig Piper TTS 配置。
type PiperConfig struct {
	Binary     string   `yaml:"binary"`
	ModelPath  string   `yaml:"model_path" env:"AENEAS_PIPER_MODEL"`
	SampleRate int      `yaml:"sample_rate"`
	Languages  []string `yaml:"languages"`
}

// SynthesisConfig 合成默认选项，命令行参数可覆盖。
type SynthesisConfig struct {
	// QuitAfter 累计时长上限（秒），0 表示不限。
	QuitAfter              float64 `yaml:"quit_after" env:"AENEAS_QUIT_AFTER"`
	Backwards              bool    `yaml:"backwards"`
	ForcePure              bool    `yaml:"force_pure"`
	AllowFallback          *bool   `yaml:"allow_fallback"`
	AllowUnlistedLanguages bool    `yaml:"allow_unlisted_languages"`
	// SampleRate 整次合成没有样本时空 WAV 文件的采样率。
	SampleRate int `yaml:"sample_rate"`
}

// OutputConfig 锚点输出配置。
type OutputConfig struct {
	AnchorsFormat string `yaml:"anchors_format" env:"AENEAS_ANCHORS_FORMAT"` // json, tsv
}

// DatabaseConfig 合成历史数据库配置。
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled" env:"AENEAS_HISTORY"`
	Path    string `yaml:"path" env:"AENEAS_DB_PATH"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level" env:"AENEAS_LOG_LEVEL"`
	File       string `yaml:"file" env:"AENEAS_LOG_FILE"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${AENEAS_TENCENT_SECRET_KEY}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	setDefaults(cfg)
	return cfg, nil
}

// Default 返回没有配置文件时的配置：环境变量加默认值。
func Default() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.TTS.Native == "" {
		cfg.TTS.Native = "sherpa"
	}
	if cfg.TTS.Pure == "" {
		cfg.TTS.Pure = "espeak"
	}
	if cfg.TTS.Sherpa.NumThreads == 0 {
		cfg.TTS.Sherpa.NumThreads = 2
	}
	if cfg.TTS.Sherpa.Speed == 0 {
		cfg.TTS.Sherpa.Speed = 1.0
	}
	if len(cfg.TTS.Sherpa.Languages) == 0 {
		cfg.TTS.Sherpa.Languages = []string{"eng"}
	}
	if cfg.TTS.Espeak.Binary == "" {
		cfg.TTS.Espeak.Binary = "espeak-ng"
	}
	if cfg.TTS.Piper.Binary == "" {
		cfg.TTS.Piper.Binary = "piper"
	}
	if cfg.Synthesis.AllowFallback == nil {
		enabled := true
		cfg.Synthesis.AllowFallback = &enabled
	}
	if cfg.Synthesis.SampleRate == 0 {
		cfg.Synthesis.SampleRate = synth.DefaultSampleRate
	}
	if cfg.Output.AnchorsFormat == "" {
		cfg.Output.AnchorsFormat = "json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = 28
	}

	if cfg.Database.Path == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = home + "/.aeneas/history.db"
		} else {
			cfg.Database.Path = "./.aeneas-data/history.db"
		}
	}
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.TTS.Sherpa.Model = expandHome(cfg.TTS.Sherpa.Model)
	cfg.TTS.Sherpa.Tokens = expandHome(cfg.TTS.Sherpa.Tokens)
	cfg.TTS.Sherpa.Lexicon = expandHome(cfg.TTS.Sherpa.Lexicon)
	cfg.TTS.Sherpa.DataDir = expandHome(cfg.TTS.Sherpa.DataDir)
	cfg.TTS.Piper.ModelPath = expandHome(cfg.TTS.Piper.ModelPath)

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.TTS.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Tencent.SecretID)
	cfg.TTS.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Tencent.SecretKey)
}

// expandHome 将 ~/ 开头的路径替换为用户主目录，Go 不会自动展开 ~。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return home + path[1:]
}

// QuitAfterDuration 把秒数转换为时长。0 表示不限，负数、NaN 和无穷大都是无效值。
func QuitAfterDuration(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("quit_after 无效: %v: %w", seconds, synth.ErrInvalidInput)
	}
	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("quit_after 过大: %v: %w", seconds, synth.ErrInvalidInput)
	}
	return time.Duration(math.Round(seconds * float64(time.Second))), nil
}

// Options 把配置转换为合成选项。
func (s SynthesisConfig) Options() (synth.Options, error) {
	quitAfter, err := QuitAfterDuration(s.QuitAfter)
	if err != nil {
		return synth.Options{}, err
	}
	opts := synth.Options{
		QuitAfter:              quitAfter,
		Direction:              synth.Forward,
		ForcePure:              s.ForcePure,
		AllowFallback:          s.AllowFallback == nil || *s.AllowFallback,
		AllowUnlistedLanguages: s.AllowUnlistedLanguages,
	}
	if s.Backwards {
		opts.Direction = synth.Backward
	}
	return opts, nil
}
