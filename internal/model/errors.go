// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, conflict, not_found, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeTaskNotFound    = "TASK_NOT_FOUND"
	ErrCodeDuplicateUser   = "DUPLICATE_USER"
	ErrCodeInvalidTitle    = "INVALID_TITLE"
	ErrCodeInvalidDueDate  = "INVALID_DUE_DATE"
	ErrCodeInvalidPriority = "INVALID_PRIORITY"
	ErrCodeInvalidImageURL = "INVALID_IMAGE_URL"
	ErrCodeUnavailable     = "UNAVAILABLE"
)

// ErrorCode はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorでない場合は空文字を返す。
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// NewUnauthenticatedError は呼び出し元の識別情報が存在しない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は他ユーザーのリソースへの操作を拒否するエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分が所有するリソースに対してのみ操作できます。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "not_found",
		Action:   "ユーザー登録が完了しているか確認してください。",
	}
}

// NewTaskNotFoundError はタスクが見つからない場合のエラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "not_found",
		Action:   "タスクIDを確認してください。",
	}
}

// NewDuplicateUserError は同一外部IDのユーザーが既に存在する場合のエラーを生成する。
func NewDuplicateUserError(externalID string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  fmt.Sprintf("この外部IDのユーザーは既に登録されています: %s", externalID),
		Category: "conflict",
		Action:   "重複したプロビジョニングイベントの可能性があります。",
	}
}

// NewInvalidTitleError はタイトルが空の場合のエラーを生成する。
func NewInvalidTitleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTitle,
		Message:  "タスクのタイトルを入力してください。",
		Category: "validation",
		Action:   "空白のみのタイトルは登録できません。",
	}
}

// NewInvalidDueDateError は期限の形式が不正な場合のエラーを生成する。
func NewInvalidDueDateError(dueDate string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDueDate,
		Message:  fmt.Sprintf("期限の形式が不正です: %s", dueDate),
		Category: "validation",
		Action:   "ISO-8601形式（例: 2026-08-28 または 2026-08-28T10:00:00Z）で指定してください。",
	}
}

// NewInvalidPriorityError は優先度が定義外の場合のエラーを生成する。
func NewInvalidPriorityError(priority string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPriority,
		Message:  fmt.Sprintf("無効な優先度です: %s", priority),
		Category: "validation",
		Action:   "優先度には Low、Medium、High のいずれかを指定してください。",
	}
}

// NewInvalidImageURLError はプロフィール画像URLが受理できない場合のエラーを生成する。
func NewInvalidImageURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageURL,
		Message:  fmt.Sprintf("無効な画像URLです: %s", reason),
		Category: "validation",
		Action:   "公開されているhttps URLを指定してください。",
	}
}

// NewUnavailableError は一時的なストア障害を表すエラーを生成する。
// このエラーのみ呼び出し側でのリトライが許容される。
func NewUnavailableError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  fmt.Sprintf("一時的にストアへアクセスできません: %v", err),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
