package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavPCMFormat   = 1
	wavNumChannels = 1
)

// Sink 接收连续的单声道样本并写入持久化的音频文件。
type Sink interface {
	// Append 追加一段样本。sampleRate 与已写入内容不一致时由实现负责重采样。
	Append(samples []float32, sampleRate int) error
	// Finalize 刷新并关闭输出，之后不可再追加。
	Finalize() error
	// Abort 释放句柄但不保证输出有效，用于中止的合成。
	Abort()
}

// WAVSink 将样本写为 16-bit 单声道 PCM WAV 文件。
// 采样率由第一段非空样本决定；之后采样率不同的样本会被重采样。
type WAVSink struct {
	path        string
	file        *os.File
	enc         *wav.Encoder
	sampleRate  int
	defaultRate int
	frames      int64
	closed      bool
}

var _ Sink = (*WAVSink)(nil)

// CreateWAV 创建（或截断）path 处的 WAV 文件。
// defaultRate 用于整次合成都没有样本时写出的空文件头。
func CreateWAV(path string, defaultRate int) (*WAVSink, error) {
	if defaultRate <= 0 {
		return nil, fmt.Errorf("[audio] 无效的默认采样率: %d", defaultRate)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("[audio] 创建 WAV 文件失败: %w", err)
	}
	return &WAVSink{path: path, file: f, defaultRate: defaultRate}, nil
}

// Path 返回输出文件路径。
func (s *WAVSink) Path() string { return s.path }

// SampleRate 返回输出文件的采样率，尚未确定时返回 0。
func (s *WAVSink) SampleRate() int { return s.sampleRate }

// Frames 返回已写入的帧数。
func (s *WAVSink) Frames() int64 { return s.frames }

func (s *WAVSink) ensureEncoder(rate int) {
	if s.enc != nil {
		return
	}
	s.sampleRate = rate
	s.enc = wav.NewEncoder(s.file, rate, wavBitDepth, wavNumChannels, wavPCMFormat)
}

func (s *WAVSink) write(samples []float32) error {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: wavNumChannels, SampleRate: s.sampleRate},
		Data:           Float32ToInt(samples),
		SourceBitDepth: wavBitDepth,
	}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("[audio] 写入 WAV 样本失败: %w", err)
	}
	s.frames += int64(len(samples))
	return nil
}

// Append 实现 Sink 接口。
func (s *WAVSink) Append(samples []float32, sampleRate int) error {
	if s.closed {
		return errors.New("[audio] WAV 输出已关闭")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("[audio] 无效的采样率: %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil
	}
	s.ensureEncoder(sampleRate)
	if sampleRate != s.sampleRate {
		samples = Resample(samples, sampleRate, s.sampleRate)
	}
	return s.write(samples)
}

// Finalize 实现 Sink 接口：补写文件头中的长度并关闭文件。
func (s *WAVSink) Finalize() error {
	if s.closed {
		return errors.New("[audio] WAV 输出已关闭")
	}
	s.closed = true

	if s.enc == nil {
		s.ensureEncoder(s.defaultRate)
		// 空数据也要写出文件头
		if err := s.write(nil); err != nil {
			s.file.Close()
			return err
		}
	}
	if err := s.enc.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("[audio] 写入 WAV 文件头失败: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("[audio] 关闭 WAV 文件失败: %w", err)
	}
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("[audio] 输出文件未生成: %w", err)
	}
	return nil
}

// Abort 实现 Sink 接口。
func (s *WAVSink) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.file.Close()
}

// ReadWAV 读取 WAV 文件，返回单声道 float32 样本与采样率。多声道会被混为单声道。
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 打开 WAV 文件失败: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("[audio] 不是有效的 WAV 文件: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 解码 WAV 失败: %w", err)
	}

	samples := IntToFloat32(buf.Data, int(dec.BitDepth))
	return DownmixToMono(samples, int(dec.NumChans)), int(dec.SampleRate), nil
}
