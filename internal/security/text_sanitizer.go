// Package security はアプリケーションのセキュリティ機能を提供する。
//
// タスクのタイトルやユーザー名はプレーンテキストとして扱う。クライアントから
// HTMLが紛れ込んでもそのまま保存しないよう、bluemondayの許可リストベースの
// ポリシーで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキストフィールドのサニタイズ機能のインターフェース。
// タスクタイトル・ユーザー名の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は全タグを除去し、実体参照を元のテキストに戻して返す。
// bluemondayはタグ除去後のテキストをエスケープするため、プレーンテキストの
// フィールドに保存する値としてはアンエスケープして扱う。
func (s *textSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
