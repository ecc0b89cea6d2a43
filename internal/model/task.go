// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが所有するタスクを表す。
// UserIDは作成後不変で、全ての読み書きは所有ユーザーにスコープされる。
type Task struct {
	ID        string
	UserID    string
	Title     string
	DueDate   string // ISO-8601文字列。空文字は期限なし。
	Priority  Priority
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Priority はタスクの優先度を表す。
type Priority string

const (
	// PriorityNone は優先度未設定を表す。
	PriorityNone Priority = ""
	// PriorityLow は低優先度。
	PriorityLow Priority = "Low"
	// PriorityMedium は中優先度。
	PriorityMedium Priority = "Medium"
	// PriorityHigh は高優先度。
	PriorityHigh Priority = "High"
)

// Valid は優先度が定義済みの値かどうかを返す。空値（未設定）は有効とみなす。
func (p Priority) Valid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// dueDateLayouts はDueDateとして受理するISO-8601のレイアウト。
var dueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ValidDueDate は期限文字列がISO-8601として解釈可能かどうかを返す。
// 空文字（期限なし）は有効とみなす。
func ValidDueDate(s string) bool {
	if s == "" {
		return true
	}
	for _, layout := range dueDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
