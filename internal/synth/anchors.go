package synth

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
)

// AnchorFormat 锚点旁路文件格式。
type AnchorFormat string

const (
	AnchorsJSON AnchorFormat = "json"
	AnchorsTSV  AnchorFormat = "tsv"
)

// ParseAnchorFormat 解析格式名，空串视为 JSON。
func ParseAnchorFormat(s string) (AnchorFormat, error) {
	switch f := AnchorFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case AnchorsJSON, AnchorsTSV:
		return f, nil
	case "":
		return AnchorsJSON, nil
	default:
		return "", fmt.Errorf("未知的锚点格式: %s", s)
	}
}

type anchorJSON struct {
	ID    string  `json:"id"`
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

type resultJSON struct {
	TotalDuration float64      `json:"total_duration"`
	EarlyStop     bool         `json:"early_stop"`
	Fragments     int          `json:"fragments"`
	Characters    int          `json:"characters"`
	Anchors       []anchorJSON `json:"anchors"`
}

// roundMillis 将秒数保留三位小数，与下游对齐器的精度一致。
func roundMillis(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// WriteAnchors 以指定格式输出结果。
func WriteAnchors(w io.Writer, r *Result, format AnchorFormat) error {
	switch format {
	case AnchorsTSV:
		for _, a := range r.Anchors {
			if _, err := fmt.Fprintf(w, "%.3f\t%.3f\t%s\n", roundMillis(a.Begin), roundMillis(a.End), a.FragmentID); err != nil {
				return err
			}
		}
		return nil
	case AnchorsJSON, "":
		out := resultJSON{
			TotalDuration: roundMillis(r.TotalDuration),
			EarlyStop:     r.EarlyStop,
			Fragments:     r.Fragments,
			Characters:    r.Characters,
			Anchors:       make([]anchorJSON, len(r.Anchors)),
		}
		for i, a := range r.Anchors {
			out.Anchors[i] = anchorJSON{ID: a.FragmentID, Begin: roundMillis(a.Begin), End: roundMillis(a.End)}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("未知的锚点格式: %s", format)
	}
}

// SaveAnchors 把结果写入 path。
func SaveAnchors(path string, r *Result, format AnchorFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[synth] 创建锚点文件失败: %w", err)
	}
	if err := WriteAnchors(f, r, format); err != nil {
		f.Close()
		return fmt.Errorf("[synth] 写入锚点文件失败: %w", err)
	}
	return f.Close()
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// LoadAnchors 读取 SaveAnchors 以 JSON 格式写出的锚点。
func LoadAnchors(path string) ([]Anchor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[synth] 读取锚点文件失败: %w", err)
	}
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("[synth] 解析锚点文件失败: %w", err)
	}
	anchors := make([]Anchor, len(in.Anchors))
	for i, a := range in.Anchors {
		anchors[i] = Anchor{FragmentID: a.ID, Begin: fromSeconds(a.Begin), End: fromSeconds(a.End)}
	}
	return anchors, nil
}

// FindAnchor 按片段 ID 查找锚点。
func FindAnchor(anchors []Anchor, id string) (Anchor, bool) {
	for _, a := range anchors {
		if a.FragmentID == id {
			return a, true
		}
	}
	return Anchor{}, false
}
