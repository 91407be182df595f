package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// Player 使用 malgo (miniaudio) 在默认扬声器上播放单声道样本，
// 用于试听某个锚点对应的音频片段。
type Player struct {
	ctx    *malgo.AllocatedContext
	log    *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewPlayer 创建播放器。log 为 nil 时不输出日志。
func NewPlayer(log *zap.Logger) (*Player, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx, log: log}, nil
}

// SpanFrames 把 [begin, end) 时间区间换算为样本下标区间，并裁剪到 [0, total]。
func SpanFrames(begin, end time.Duration, sampleRate, total int) (int, int) {
	toFrame := func(d time.Duration) int {
		f := int(int64(d) * int64(sampleRate) / int64(time.Second))
		if f < 0 {
			return 0
		}
		if f > total {
			return total
		}
		return f
	}
	from, to := toFrame(begin), toFrame(end)
	if to < from {
		to = from
	}
	return from, to
}

// PlaySpan 播放 samples 中 [begin, end) 区间的音频。
func (p *Player) PlaySpan(ctx context.Context, samples []float32, sampleRate int, begin, end time.Duration) error {
	from, to := SpanFrames(begin, end, sampleRate, len(samples))
	return p.Play(ctx, samples[from:to], sampleRate)
}

// Play 阻塞播放，直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("[audio] 播放器已关闭")
	}
	p.mu.Unlock()

	pcm := Float32ToBytes(samples)
	pos := 0
	done := make(chan struct{}, 1)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			need := int(frameCount) * 2
			n := copy(out[:need], pcm[pos:])
			for i := n; i < need; i++ {
				out[i] = 0
			}
			pos += n
			if pos >= len(pcm) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("[audio] 初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("[audio] 启动播放设备失败: %w", err)
	}
	defer device.Stop()

	p.log.Debug("[audio] 开始播放", zap.Int("samples", len(samples)), zap.Int("sample_rate", sampleRate))

	select {
	case <-ctx.Done():
		p.log.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
