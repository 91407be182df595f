package audio

import (
	"encoding/binary"
	"math"
)

// Int16ToFloat32 将 PCM int16 样本转换为 [-1.0, 1.0] 范围的 float32。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 将 float32 样本钳位到 [-1.0, 1.0] 后转换为 PCM int16。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

// Float32ToInt 转换为 go-audio IntBuffer 使用的 16-bit 整数样本。
func Float32ToInt(in []float32) []int {
	out := make([]int, len(in))
	for i, s := range in {
		out[i] = int(clamp(s) * math.MaxInt16)
	}
	return out
}

// IntToFloat32 将任意位深的整数样本归一化为 float32。
func IntToFloat32(in []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1)<<(bitDepth-1) - 1)
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / scale
	}
	return out
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// BytesToInt16 将小端字节切片转换为 int16 样本，奇数尾字节被丢弃。
func BytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// Int16ToBytes 将 int16 样本转换为小端字节切片。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// BytesToFloat32 将单声道 s16le PCM 字节直接转换为 float32。
func BytesToFloat32(b []byte) []float32 {
	return Int16ToFloat32(BytesToInt16(b))
}

// Float32ToBytes 将 float32 样本直接转换为 s16le PCM 字节。
func Float32ToBytes(in []float32) []byte {
	return Int16ToBytes(Float32ToInt16(in))
}

// StereoBytesToMono 将交错立体声 s16le PCM 左右声道取平均，得到单声道 float32。
// 不完整的尾部帧被截掉。
func StereoBytesToMono(pcm []byte) []float32 {
	const bytesPerFrame = 4
	numFrames := len(pcm) / bytesPerFrame
	out := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		offset := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(pcm[offset : offset+2]))
		right := int16(binary.LittleEndian.Uint16(pcm[offset+2 : offset+4]))
		out[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}
	return out
}

// DownmixToMono 将 channels 路交错样本取平均。
func DownmixToMono(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample 以线性插值把单声道样本从 from Hz 转换到 to Hz。
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
