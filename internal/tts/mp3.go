package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/rschmaelzle/aeneas/internal/audio"
)

// decodeMP3 将云端返回的 MP3 解码为单声道 float32 样本。
// go-mp3 总是输出立体声 s16le PCM。
func decodeMP3(ctx context.Context, data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("未收到音频数据")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("MP3 解码失败: %w", err)
	}

	var pcm bytes.Buffer
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		n, err := decoder.Read(buf)
		pcm.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("读取 PCM 数据失败: %w", err)
		}
	}

	return audio.StereoBytesToMono(pcm.Bytes()), decoder.SampleRate(), nil
}
