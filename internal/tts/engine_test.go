package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUnavailableError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: lookup speech.platform.bing.com: no such host"), true},
		{errors.New("read: connection reset by peer"), true},
		{fmt.Errorf("wrapped: %w", exec.ErrNotFound), true},
		{fmt.Errorf("open model.onnx: %w", os.ErrNotExist), true},
		{errors.New("[TencentCloudSDKError] Code=ResourceInsufficient"), true},
		{errors.New("exit status 1"), false},
		{errors.New("invalid text"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsUnavailableError(c.err), "err=%v", c.err)
	}
}

func TestClassify(t *testing.T) {
	err := classify("x", errors.New("i/o timeout"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	err = classify("x", errors.New("bad input"))
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestSherpaEngine_MissingModelIsUnavailable(t *testing.T) {
	e := NewSherpaEngine(SherpaConfig{
		Model:     filepath.Join(t.TempDir(), "missing.onnx"),
		Tokens:    filepath.Join(t.TempDir(), "tokens.txt"),
		Languages: []string{"en"},
	}, nil)
	defer e.Close()

	assert.True(t, e.IsLanguageSupported("eng"))
	assert.False(t, e.IsLanguageSupported("ita"))

	_, _, err := e.Synthesize(context.Background(), "hello", "eng")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestSherpaEngine_NoModelConfigured(t *testing.T) {
	e := NewSherpaEngine(SherpaConfig{}, nil)
	_, _, err := e.Synthesize(context.Background(), "hello", "eng")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestEspeakEngine_MissingBinary(t *testing.T) {
	e := NewEspeakEngine(filepath.Join(t.TempDir(), "no-espeak"), nil)
	assert.True(t, e.IsLanguageSupported("en"))
	assert.False(t, e.IsLanguageSupported("tlh"))

	_, _, err := e.Synthesize(context.Background(), "hello", "eng")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-piper")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestPiperEngine_RawOutput(t *testing.T) {
	bin := writeScript(t, "cat > /dev/null\nprintf '\\377\\177\\000\\000'\n")
	e := NewPiperEngine(PiperConfig{Binary: bin, ModelPath: "voice.onnx", Languages: []string{"eng"}}, nil)

	samples, rate, err := e.Synthesize(context.Background(), "hello", "eng")
	require.NoError(t, err)
	assert.Equal(t, defaultPiperSampleRate, rate)
	require.Len(t, samples, 2)
	assert.Equal(t, float32(1.0), samples[0])
	assert.Equal(t, float32(0), samples[1])
}

func TestPiperEngine_Failure(t *testing.T) {
	bin := writeScript(t, "echo boom >&2\nexit 3\n")
	e := NewPiperEngine(PiperConfig{Binary: bin, ModelPath: "voice.onnx"}, nil)

	_, _, err := e.Synthesize(context.Background(), "hello", "eng")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestPiperEngine_NoModel(t *testing.T) {
	e := NewPiperEngine(PiperConfig{}, nil)
	_, _, err := e.Synthesize(context.Background(), "hello", "eng")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestEdgeEngine_Languages(t *testing.T) {
	e := NewEdgeEngine(map[string]string{"en": "en-GB-SoniaNeural", "ita": "it-IT-ElsaNeural"}, nil)
	assert.True(t, e.IsLanguageSupported("eng"))
	assert.True(t, e.IsLanguageSupported("it"))
	assert.False(t, e.IsLanguageSupported("deu"))

	v, ok := e.voice("en-GB")
	assert.True(t, ok)
	assert.Equal(t, "en-GB-SoniaNeural", v)
}

func TestTencentEngine(t *testing.T) {
	_, err := NewTencentEngine(TencentConfig{}, nil)
	assert.Error(t, err)

	e, err := NewTencentEngine(TencentConfig{SecretID: "id", SecretKey: "key"}, nil)
	require.NoError(t, err)
	assert.True(t, e.IsLanguageSupported("cmn"))
	assert.True(t, e.IsLanguageSupported("en"))
	assert.False(t, e.IsLanguageSupported("fra"))
}
