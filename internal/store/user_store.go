package store

import (
	"context"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// userStore はusersテーブルのリポジトリビュー。
type userStore struct {
	s *Store
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (u *userStore) FindByID(_ context.Context, id string) (*model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	return copyUser(u.s.users[id]), nil
}

// FindByExternalID は外部IdPの識別子でユーザーを検索する。
// external_idのユニークインデックスを引く。見つからない場合はnilを返す。
func (u *userStore) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	id, ok := u.s.usersByExternal[externalID]
	if !ok {
		return nil, nil
	}
	return copyUser(u.s.users[id]), nil
}

// Create はユーザーを作成する。
// 同一external_idのユーザーが既に存在する場合はErrDuplicateExternalIDを返す。
func (u *userStore) Create(_ context.Context, user *model.User) error {
	unlock := u.s.lockUser(user.ID)
	defer unlock()

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, exists := u.s.usersByExternal[user.ExternalID]; exists {
		return repository.ErrDuplicateExternalID
	}

	stored := copyUser(user)
	u.s.users[stored.ID] = stored
	u.s.usersByExternal[stored.ExternalID] = stored.ID
	u.s.nextSeq()
	return nil
}

// Update は指定されたフィールドのみを更新し、更新後のユーザーを返す。
// 見つからない場合はnilを返す。部分パッチは単一のコミットとして適用される。
func (u *userStore) Update(_ context.Context, id string, patch repository.UserPatch) (*model.User, error) {
	unlock := u.s.lockUser(id)
	defer unlock()

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	stored, ok := u.s.users[id]
	if !ok {
		return nil, nil
	}

	if patch.Email != nil {
		stored.Email = *patch.Email
	}
	if patch.FirstName != nil {
		stored.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		stored.LastName = *patch.LastName
	}
	if patch.Username != nil {
		stored.Username = *patch.Username
	}
	if patch.Image != nil {
		stored.Image = *patch.Image
	}
	stored.UpdatedAt = u.s.clock()
	u.s.nextSeq()

	return copyUser(stored), nil
}

// DeleteByID は指定IDのユーザーを削除し、削除したユーザーを返す。
// 見つからない場合はnilを返す。所有タスクの削除は呼び出し側の責務。
func (u *userStore) DeleteByID(_ context.Context, id string) (*model.User, error) {
	unlock := u.s.lockUser(id)
	defer unlock()

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	stored, ok := u.s.users[id]
	if !ok {
		return nil, nil
	}

	delete(u.s.users, id)
	delete(u.s.usersByExternal, stored.ExternalID)
	u.s.nextSeq()

	return stored, nil
}

// compile-time interface check
var _ repository.UserRepository = (*userStore)(nil)
