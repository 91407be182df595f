package synth

import (
	"errors"
	"fmt"
)

// 合成失败的分类。调用方用 errors.Is 判断。
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrDestinationUnwritable  = errors.New("destination cannot be written")
	ErrUnsupportedLanguage    = errors.New("unsupported language")
	ErrSynthesisFailed        = errors.New("synthesis failed")
	ErrDestinationWriteFailed = errors.New("destination write failed")
)

// FragmentError 标识导致整次合成失败的片段。
type FragmentError struct {
	FragmentID string
	Language   string
	Err        error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("fragment %s (language %q): %v", e.FragmentID, e.Language, e.Err)
}

func (e *FragmentError) Unwrap() error { return e.Err }
