package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameRunes は保存する表示名の最大文字数。
const maxDisplayNameRunes = 128

// DisplayNameSanitizer はIdPから受け取った表示名からマークアップと制御文字を除去する。
// bluemondayのStrictPolicyを保持し、並行利用しても安全。
type DisplayNameSanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplayNameSanitizer はDisplayNameSanitizerを生成する。
func NewDisplayNameSanitizer() *DisplayNameSanitizer {
	return &DisplayNameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、エスケープされた文字を元に戻して返す。
// 連続する空白は1つにまとめ、前後の空白を取り除く。
func (s *DisplayNameSanitizer) Sanitize(name string) string {
	stripped := html.UnescapeString(s.policy.Sanitize(name))

	var b strings.Builder
	space := false
	n := 0
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if n >= maxDisplayNameRunes {
			break
		}
		if space && b.Len() > 0 {
			b.WriteRune(' ')
			n++
		}
		space = false
		b.WriteRune(r)
		n++
	}
	return b.String()
}
