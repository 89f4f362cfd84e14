package chanengine

import (
	"regexp"
	"strings"
)

var quotedTag = regexp.MustCompile(`'([^']+)'`)

// ParseTags は買売点タイプの文字列からタグを取り出す。
//
// エンジンは複数タイプを "[<BSP_TYPE.T2: '2'>, <BSP_TYPE.T3A: '3a'>]" のように
// 1つの文字列へまとめて返すことがある。引用符で囲まれた値を出現順に重複なく返し、
// 引用符がなければ文字列全体を1つのタグとして扱う。
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	matches := quotedTag.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return []string{raw}
	}

	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := m[1]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
