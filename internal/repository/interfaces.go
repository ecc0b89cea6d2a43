// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskdeck/internal/model"
)

// ErrDuplicateExternalID は同一external_idのユーザーが既に存在することを示す。
// 一意インデックス違反をストア実装からサービス層へ伝えるための番兵エラー。
var ErrDuplicateExternalID = errors.New("duplicate external id")

// UserPatch はユーザーの部分更新を表す。nilフィールドは変更しない。
type UserPatch struct {
	Email     *string
	FirstName *string
	LastName  *string
	Username  *string
	Image     *model.ImageRef
}

// TaskPatch はタスクの部分更新を表す。nilフィールドは変更しない。
type TaskPatch struct {
	Title    *string
	DueDate  *string
	Priority *model.Priority
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalID は外部IdPの識別子でユーザーを検索する。
	// external_idのユニークインデックスを使用する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同一external_idのユーザーが既に存在する場合はErrDuplicateExternalIDを返す。
	Create(ctx context.Context, user *model.User) error

	// Update は指定されたフィールドのみを更新し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id string, patch UserPatch) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除し、削除したユーザーを返す。
	// 見つからない場合はnilを返す。
	DeleteByID(ctx context.Context, id string) (*model.User, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 一覧はすべて挿入順の降順（新しいものが先頭）で返す。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByUserID はユーザーが所有する全タスクを挿入順降順で返す。
	// (user_id)インデックスを使用する。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// ListCompletedByUserID は完了済みタスクのみを挿入順降順で返す。
	// (user_id)インデックス内の線形フィルタで絞り込む。
	ListCompletedByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// Create はタスクを作成する。completed=falseで開始する。
	Create(ctx context.Context, task *model.Task) error

	// Update は指定されたフィールドのみを更新し、更新後のタスクを返す。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id string, patch TaskPatch) (*model.Task, error)

	// ToggleCompleted は保存されている完了状態を原子的に反転し、更新後のタスクを返す。
	// 見つからない場合はnilを返す。
	ToggleCompleted(ctx context.Context, id string) (*model.Task, error)

	// Delete は指定IDのタスクを完全に削除し、削除したタスクを返す。
	// 見つからない場合はnilを返す。
	Delete(ctx context.Context, id string) (*model.Task, error)

	// DeleteByUserID はユーザーが所有する全タスクを削除し、削除件数を返す。
	// アカウント削除イベントのカスケード処理で使用する。
	DeleteByUserID(ctx context.Context, userID string) (int, error)
}
