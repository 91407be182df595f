package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Engine 定义单片段语音合成后端接口。
type Engine interface {
	// Name 返回引擎名称，用于日志。
	Name() string

	// IsLanguageSupported 返回引擎能否朗读该语言。
	IsLanguageSupported(lang string) bool

	// Synthesize 将一段文本转换为单声道 float32 样本。
	// 返回样本、采样率（Hz）和错误。引擎整体无法工作时（缺少模型、
	// 缺少可执行文件、网络不可达）返回的错误满足 errors.Is(err, ErrBackendUnavailable)。
	Synthesize(ctx context.Context, text, lang string) ([]float32, int, error)
}

// ErrBackendUnavailable 表示后端当前不可用，调用方可以换用备用引擎。
var ErrBackendUnavailable = errors.New("tts backend unavailable")

// unavailable 给错误打上 ErrBackendUnavailable 标记。
func unavailable(engine string, err error) error {
	return fmt.Errorf("[tts] %s: %w: %w", engine, ErrBackendUnavailable, err)
}

// classify 按错误内容决定是否标记为不可用。
func classify(engine string, err error) error {
	if IsUnavailableError(err) {
		return unavailable(engine, err)
	}
	return fmt.Errorf("[tts] %s 合成失败: %w", engine, err)
}

// IsUnavailableError 判断错误是否意味着后端整体不可用：
// 可执行文件或模型缺失、网络错误、云端额度耗尽。
func IsUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"resourceinsufficient",
		"quotaexhausted",
		"unauthorizedoperation",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}
