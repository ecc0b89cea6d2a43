package subscribe

import (
	"context"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// NotifyingUserRepo はUserRepositoryのデコレータ。
// 成功したミューテーションのコミット後に書き込みセットをエンジンへ通知する。
// 読み取り系はそのまま委譲する。
type NotifyingUserRepo struct {
	inner  repository.UserRepository
	engine *Engine
}

// NewNotifyingUserRepo はNotifyingUserRepoを生成する。
func NewNotifyingUserRepo(inner repository.UserRepository, engine *Engine) *NotifyingUserRepo {
	return &NotifyingUserRepo{inner: inner, engine: engine}
}

func (r *NotifyingUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.inner.FindByID(ctx, id)
}

func (r *NotifyingUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.inner.FindByExternalID(ctx, externalID)
}

func (r *NotifyingUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := r.inner.Create(ctx, user); err != nil {
		return err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableUsers, UserIDs: []string{user.ID}})
	return nil
}

func (r *NotifyingUserRepo) Update(ctx context.Context, id string, patch repository.UserPatch) (*model.User, error) {
	updated, err := r.inner.Update(ctx, id, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableUsers, UserIDs: []string{updated.ID}})
	return updated, nil
}

func (r *NotifyingUserRepo) DeleteByID(ctx context.Context, id string) (*model.User, error) {
	deleted, err := r.inner.DeleteByID(ctx, id)
	if err != nil || deleted == nil {
		return deleted, err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableUsers, UserIDs: []string{deleted.ID}})
	return deleted, nil
}

var _ repository.UserRepository = (*NotifyingUserRepo)(nil)

// NotifyingTaskRepo はTaskRepositoryのデコレータ。
// 成功したミューテーションのコミット後に、影響を受けた所有ユーザーをキーと
// する書き込みセットをエンジンへ通知する。
type NotifyingTaskRepo struct {
	inner  repository.TaskRepository
	engine *Engine
}

// NewNotifyingTaskRepo はNotifyingTaskRepoを生成する。
func NewNotifyingTaskRepo(inner repository.TaskRepository, engine *Engine) *NotifyingTaskRepo {
	return &NotifyingTaskRepo{inner: inner, engine: engine}
}

func (r *NotifyingTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return r.inner.FindByID(ctx, id)
}

func (r *NotifyingTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	return r.inner.ListByUserID(ctx, userID)
}

func (r *NotifyingTaskRepo) ListCompletedByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	return r.inner.ListCompletedByUserID(ctx, userID)
}

func (r *NotifyingTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if err := r.inner.Create(ctx, task); err != nil {
		return err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableTasks, UserIDs: []string{task.UserID}})
	return nil
}

func (r *NotifyingTaskRepo) Update(ctx context.Context, id string, patch repository.TaskPatch) (*model.Task, error) {
	updated, err := r.inner.Update(ctx, id, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableTasks, UserIDs: []string{updated.UserID}})
	return updated, nil
}

func (r *NotifyingTaskRepo) ToggleCompleted(ctx context.Context, id string) (*model.Task, error) {
	toggled, err := r.inner.ToggleCompleted(ctx, id)
	if err != nil || toggled == nil {
		return toggled, err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableTasks, UserIDs: []string{toggled.UserID}})
	return toggled, nil
}

func (r *NotifyingTaskRepo) Delete(ctx context.Context, id string) (*model.Task, error) {
	deleted, err := r.inner.Delete(ctx, id)
	if err != nil || deleted == nil {
		return deleted, err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableTasks, UserIDs: []string{deleted.UserID}})
	return deleted, nil
}

func (r *NotifyingTaskRepo) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	count, err := r.inner.DeleteByUserID(ctx, userID)
	if err != nil || count == 0 {
		return count, err
	}
	r.engine.Publish(ctx, WriteSet{Table: TableTasks, UserIDs: []string{userID}})
	return count, nil
}

var _ repository.TaskRepository = (*NotifyingTaskRepo)(nil)
