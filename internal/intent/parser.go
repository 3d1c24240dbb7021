package intent

import (
	"regexp"
	"strconv"
	"strings"
)

type keyword struct {
	token  string
	intent string
}

// 顺序即匹配优先级。
var keywordTable = []keyword{
	{"shutdown", "shutdown_system"},
	{"reboot", "reboot_system"},
	{"wifi", "manage_wifi"},
	{"open", "open_app"},
	{"search", "search_web"},
	{"play", "play_music"},
	{"music", "play_music"},
}

var (
	appPattern    = regexp.MustCompile(`(?i)open\s+(?P<app>[a-z0-9_\-]+)`)
	playPattern   = regexp.MustCompile(`(?i)play\s+(?P<query>.+)$`)
	devicePattern = regexp.MustCompile(`(?i)(wifi|bluetooth|screen|volume|battery)`)
	numberPattern = regexp.MustCompile(`\d+`)
)

// KeywordParser 是基于关键字和正则的轻量解析器，仅供命令行演示使用。
type KeywordParser struct{}

// Parse 将原始文本转换为 Intent。baseConfidence 来自语音识别等上游环节。
func (KeywordParser) Parse(text string, baseConfidence float64) Intent {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	name := Unknown
	for _, kw := range keywordTable {
		if strings.Contains(lower, kw.token) {
			name = kw.intent
			break
		}
	}

	entities := map[string]any{}
	if m := appPattern.FindStringSubmatch(text); m != nil {
		entities["app"] = m[1]
	}
	if m := playPattern.FindStringSubmatch(text); m != nil {
		entities["query"] = strings.TrimSpace(m[1])
	}
	if m := devicePattern.FindStringSubmatch(text); m != nil {
		entities["device"] = strings.ToLower(m[1])
	}
	if m := numberPattern.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			entities["number"] = n
		}
	}

	confidence := baseConfidence
	if len(entities) > 0 {
		confidence = min(0.99, confidence+0.1)
	}
	return Intent{Name: name, Confidence: confidence, Entities: entities, Text: text}
}
