// Package identity は外部IdPの識別子から内部ユーザーへの解決を提供する。
package identity

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// externalIDContextKey はリクエストコンテキストに外部IDを格納するためのキー。
var externalIDContextKey = contextKey("external_id")

// ContextWithExternalID はコンテキストに認証済みの外部IDを注入する。
// 認証ミドルウェアとテストで使用する。
func ContextWithExternalID(ctx context.Context, externalID string) context.Context {
	return context.WithValue(ctx, externalIDContextKey, externalID)
}

// ExternalIDFromContext はリクエストコンテキストから外部IDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func ExternalIDFromContext(ctx context.Context) (string, error) {
	externalID, ok := ctx.Value(externalIDContextKey).(string)
	if !ok || externalID == "" {
		return "", fmt.Errorf("external ID not found in context")
	}
	return externalID, nil
}

// Resolver は外部IDから内部ユーザーレコードへの解決を行う。
// 解決の副作用としてユーザーを作成することはない。プロビジョニングは
// 外部ライフサイクルイベント（webhook）経由の明示的なパスに限る。
type Resolver struct {
	users repository.UserRepository
}

// NewResolver はResolverを生成する。
func NewResolver(users repository.UserRepository) *Resolver {
	return &Resolver{users: users}
}

// Resolve はコンテキストの外部IDから内部ユーザーを解決する。
// 識別情報がない場合はUNAUTHENTICATED、ユーザーレコードが未作成の場合は
// USER_NOT_FOUND（プロビジョニングとの競合）を返す。
// external_idのユニークインデックスによるO(1)ルックアップ。
func (r *Resolver) Resolve(ctx context.Context) (*model.User, error) {
	externalID, err := ExternalIDFromContext(ctx)
	if err != nil {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := r.users.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
