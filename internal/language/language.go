// Package language 维护合成器可识别的语言表（ISO 639-3 代码）及其 espeak 语音映射。
package language

import (
	"sort"
	"strings"

	xlanguage "golang.org/x/text/language"
)

// Info 描述一种已登记的语言。
type Info struct {
	Code   string // ISO 639-3
	Name   string
	Espeak string // espeak / espeak-ng 语音名
}

var table = map[string]Info{
	"afr": {"afr", "Afrikaans", "af"},
	"arg": {"arg", "Aragonese", "an"},
	"bos": {"bos", "Bosnian", "bs"},
	"bul": {"bul", "Bulgarian", "bg"},
	"cat": {"cat", "Catalan", "ca"},
	"ces": {"ces", "Czech", "cs"},
	"cmn": {"cmn", "Mandarin Chinese", "zh"},
	"cym": {"cym", "Welsh", "cy"},
	"dan": {"dan", "Danish", "da"},
	"deu": {"deu", "German", "de"},
	"ell": {"ell", "Greek (Modern)", "el"},
	"eng": {"eng", "English", "en"},
	"epo": {"epo", "Esperanto", "eo"},
	"est": {"est", "Estonian", "et"},
	"eus": {"eus", "Basque", "eu"},
	"fas": {"fas", "Persian", "fa"},
	"fin": {"fin", "Finnish", "fi"},
	"fra": {"fra", "French", "fr"},
	"gla": {"gla", "Scottish Gaelic", "gd"},
	"gle": {"gle", "Irish", "ga"},
	"glg": {"glg", "Galician", "gl"},
	"grc": {"grc", "Greek (Ancient)", "grc"},
	"guj": {"guj", "Gujarati", "gu"},
	"hin": {"hin", "Hindi", "hi"},
	"hrv": {"hrv", "Croatian", "hr"},
	"hun": {"hun", "Hungarian", "hu"},
	"hye": {"hye", "Armenian", "hy"},
	"ind": {"ind", "Indonesian", "id"},
	"isl": {"isl", "Icelandic", "is"},
	"ita": {"ita", "Italian", "it"},
	"jbo": {"jbo", "Lojban", "jbo"},
	"kal": {"kal", "Greenlandic", "kl"},
	"kan": {"kan", "Kannada", "kn"},
	"kat": {"kat", "Georgian", "ka"},
	"kir": {"kir", "Kirghiz", "ky"},
	"kur": {"kur", "Kurdish", "ku"},
	"lat": {"lat", "Latin", "la"},
	"lav": {"lav", "Latvian", "lv"},
	"lfn": {"lfn", "Lingua Franca Nova", "lfn"},
	"lit": {"lit", "Lithuanian", "lt"},
	"mal": {"mal", "Malayalam", "ml"},
	"mar": {"mar", "Marathi", "mr"},
	"mkd": {"mkd", "Macedonian", "mk"},
	"msa": {"msa", "Malay", "ms"},
	"nep": {"nep", "Nepali", "ne"},
	"nld": {"nld", "Dutch", "nl"},
	"nor": {"nor", "Norwegian", "no"},
	"pan": {"pan", "Panjabi", "pa"},
	"pap": {"pap", "Papiamento", "pap"},
	"pol": {"pol", "Polish", "pl"},
	"por": {"por", "Portuguese", "pt"},
	"ron": {"ron", "Romanian", "ro"},
	"rus": {"rus", "Russian", "ru"},
	"slk": {"slk", "Slovak", "sk"},
	"slv": {"slv", "Slovenian", "sl"},
	"spa": {"spa", "Spanish", "es"},
	"sqi": {"sqi", "Albanian", "sq"},
	"srp": {"srp", "Serbian", "sr"},
	"swa": {"swa", "Swahili", "sw"},
	"swe": {"swe", "Swedish", "sv"},
	"tam": {"tam", "Tamil", "ta"},
	"tat": {"tat", "Tatar", "tt"},
	"tur": {"tur", "Turkish", "tr"},
	"ukr": {"ukr", "Ukrainian", "uk"},
	"vie": {"vie", "Vietnamese", "vi"},
	"yue": {"yue", "Yue Chinese", "zh-yue"},
	"zho": {"zho", "Chinese", "zh"},
}

// Normalize 将语言代码规整为表中的 ISO 639-3 代码。
// 支持 ISO 639-1（如 "en"）和 BCP 47 标签（如 "en-US"）输入。
// 未登记的语言原样（小写）返回，ok 为 false。
func Normalize(code string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(code))
	if _, ok := table[c]; ok {
		return c, true
	}
	if c == "" {
		return c, false
	}
	if tag, err := xlanguage.Parse(c); err == nil {
		base, _ := tag.Base()
		if iso3 := base.ISO3(); iso3 != "" {
			if _, ok := table[iso3]; ok {
				return iso3, true
			}
		}
	}
	return c, false
}

// IsListed 返回语言是否在表中（接受任意可规整的写法）。
func IsListed(code string) bool {
	_, ok := Normalize(code)
	return ok
}

// Lookup 返回语言信息。
func Lookup(code string) (Info, bool) {
	c, ok := Normalize(code)
	if !ok {
		return Info{}, false
	}
	return table[c], true
}

// EspeakVoice 返回 espeak 使用的语音名。未登记的语言直接把代码当作语音名，
// 由 espeak 自行决定能否处理。
func EspeakVoice(code string) string {
	if info, ok := Lookup(code); ok {
		return info.Espeak
	}
	return strings.ToLower(strings.TrimSpace(code))
}

// All 返回按代码排序的全部语言。
func All() []Info {
	out := make([]Info, 0, len(table))
	for _, info := range table {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Set 是一组已规整的语言代码，用于描述某个引擎支持的语言子集。
type Set map[string]struct{}

// NewSet 规整并收集给定代码。未登记的代码按小写原样保留。
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, code := range codes {
		c, _ := Normalize(code)
		if c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

// Contains 判断集合是否包含该语言。
func (s Set) Contains(code string) bool {
	c, _ := Normalize(code)
	_, ok := s[c]
	return ok
}
