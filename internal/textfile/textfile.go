// Package textfile 读取待合成的文本片段。
package textfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// Fragment 是一个待朗读的文本片段。
type Fragment struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

// Format 文本文件格式。
type Format string

const (
	FormatPlain     Format = "plain"     // 每个非空行一个片段
	FormatParsed    Format = "parsed"    // 每行 "id|text"
	FormatSubtitles Format = "subtitles" // 空行分隔的块，块内各行以空格拼接
	FormatJSON      Format = "json"      // [{"id":..,"language":..,"text":..}]
)

// ParseFormat 解析格式名。
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPlain, FormatParsed, FormatSubtitles, FormatJSON:
		return f, nil
	case "":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("[textfile] 未知的文本格式: %s", s)
	}
}

// TextFile 是有序、只读的片段集合。
type TextFile struct {
	fragments []Fragment
}

// New 用给定片段创建 TextFile。片段会被复制。
func New(fragments []Fragment) *TextFile {
	cp := make([]Fragment, len(fragments))
	copy(cp, fragments)
	return &TextFile{fragments: cp}
}

// Fragments 返回片段副本，调用方修改不会影响 TextFile。
func (tf *TextFile) Fragments() []Fragment {
	if tf == nil {
		return nil
	}
	cp := make([]Fragment, len(tf.fragments))
	copy(cp, tf.fragments)
	return cp
}

// Len 返回片段数量。
func (tf *TextFile) Len() int {
	if tf == nil {
		return 0
	}
	return len(tf.fragments)
}

// Chars 返回全部片段的字符（rune）总数。
func (tf *TextFile) Chars() int {
	if tf == nil {
		return 0
	}
	n := 0
	for _, f := range tf.fragments {
		n += utf8.RuneCountInString(f.Text)
	}
	return n
}

// SetLanguage 为所有未指定语言的片段设置语言。
func (tf *TextFile) SetLanguage(lang string) {
	for i := range tf.fragments {
		if tf.fragments[i].Language == "" {
			tf.fragments[i].Language = lang
		}
	}
}

// Load 从文件读取片段，lang 作为缺省语言。
func Load(path string, format Format, lang string) (*TextFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[textfile] 打开文本文件 %s 失败: %w", path, err)
	}
	defer f.Close()

	tf, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("[textfile] 解析 %s 失败: %w", path, err)
	}
	tf.SetLanguage(lang)
	return tf, nil
}

// Read 按格式从 r 读取片段。
func Read(r io.Reader, format Format) (*TextFile, error) {
	switch format {
	case FormatPlain, "":
		return readPlain(r)
	case FormatParsed:
		return readParsed(r)
	case FormatSubtitles:
		return readSubtitles(r)
	case FormatJSON:
		return readJSON(r)
	default:
		return nil, fmt.Errorf("未知的文本格式: %s", format)
	}
}

func fragmentID(i int) string {
	return fmt.Sprintf("f%06d", i)
}

func readPlain(r io.Reader) (*TextFile, error) {
	var frags []Fragment
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		frags = append(frags, Fragment{ID: fragmentID(len(frags) + 1), Text: line})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &TextFile{fragments: frags}, nil
}

func readParsed(r io.Reader) (*TextFile, error) {
	var frags []Fragment
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, text, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("第 %d 行缺少 '|' 分隔符", lineNo)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("第 %d 行片段 ID 为空", lineNo)
		}
		frags = append(frags, Fragment{ID: id, Text: strings.TrimSpace(text)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &TextFile{fragments: frags}, nil
}

func readSubtitles(r io.Reader) (*TextFile, error) {
	var frags []Fragment
	var block []string
	flush := func() {
		if len(block) == 0 {
			return
		}
		frags = append(frags, Fragment{ID: fragmentID(len(frags) + 1), Text: strings.Join(block, " ")})
		block = block[:0]
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return &TextFile{fragments: frags}, nil
}

func readJSON(r io.Reader) (*TextFile, error) {
	var frags []Fragment
	if err := json.NewDecoder(r).Decode(&frags); err != nil {
		return nil, err
	}
	for i, f := range frags {
		if strings.TrimSpace(f.ID) == "" {
			return nil, fmt.Errorf("第 %d 个片段 ID 为空", i+1)
		}
	}
	return &TextFile{fragments: frags}, nil
}
