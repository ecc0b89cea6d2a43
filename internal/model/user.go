// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// ExternalIDは外部IdPが発行する識別子で、1ユーザーにつき必ず1つ、割り当て後は不変。
type User struct {
	ID         string
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Username   string
	Image      ImageRef
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ImageRefKind はプロフィール画像参照の種別を表す。
type ImageRefKind string

const (
	// ImageRefNone は画像未設定を表す。
	ImageRefNone ImageRefKind = ""
	// ImageRefExternalURL は外部の絶対URLを表す。
	ImageRefExternalURL ImageRefKind = "external_url"
	// ImageRefStorage は内部ストレージのハンドルを表す。
	// クライアントへ返す前にURLへ解決する必要がある。
	ImageRefStorage ImageRefKind = "storage_ref"
)

// ImageRef はプロフィール画像の参照を表すタグ付きバリアント。
// 外部URLか内部ストレージハンドルのいずれかを保持する。
type ImageRef struct {
	Kind  ImageRefKind
	Value string
}

// ParseImageRef は文字列からImageRefを構築する。
// http/httpsで始まる値は外部URL、それ以外の非空値はストレージハンドルとして扱う。
func ParseImageRef(raw string) ImageRef {
	if raw == "" {
		return ImageRef{}
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return ImageRef{Kind: ImageRefExternalURL, Value: raw}
	}
	return ImageRef{Kind: ImageRefStorage, Value: raw}
}

// IsZero は画像が未設定かどうかを返す。
func (r ImageRef) IsZero() bool {
	return r.Kind == ImageRefNone
}

// String はストレージ保存用の生値を返す。
func (r ImageRef) String() string {
	return r.Value
}

// DefaultUsername はusername未指定時の既定値（first_name + last_name 連結）を返す。
func DefaultUsername(firstName, lastName string) string {
	return firstName + lastName
}
