package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はサインアップ時の自由入力テキストからマークアップを取り除く。
// 事業者名や事業説明はプロバイダーのメタデータと公開プロフィールに保存されるため、
// 保存前にタグを除去しておく。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はStrictPolicy（全タグ除去）のTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// bluemondayがエスケープした文字（&amp; など）は元に戻す。表示時のエスケープはテンプレートが行う。
func (s *TextSanitizer) Sanitize(input string) string {
	cleaned := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
