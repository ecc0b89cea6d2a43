// Package task はタスク管理のドメインロジックを提供する。
//
// 全ての読み書きは呼び出し元の解決済みユーザーにスコープされる。
// 他ユーザーのタスクに対する操作は、存在の有無を漏らさないよう
// 一律TASK_NOT_FOUNDとして扱う。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskdeck/internal/identity"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
)

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title    string
	DueDate  string
	Priority string
}

// UpdateInput はタスクの部分更新の入力。nilフィールドは変更しない。
type UpdateInput struct {
	Title    *string
	DueDate  *string
	Priority *string
}

// ToggleResult は完了状態トグルの結果。
type ToggleResult struct {
	Success   bool
	Completed bool
}

// Service はタスク管理のサービス層。
type Service struct {
	tasks     repository.TaskRepository
	resolver  *identity.Resolver
	sanitizer security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tasks repository.TaskRepository,
	resolver *identity.Resolver,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		tasks:     tasks,
		resolver:  resolver,
		sanitizer: sanitizer,
	}
}

// Create は呼び出し元のユーザーにタスクを作成する。completed=falseで開始する。
// トリム後に空のタイトル、不正な期限形式、定義外の優先度は検証エラーを返す。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Task, error) {
	owner, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	title := s.sanitizer.Sanitize(in.Title)
	if strings.TrimSpace(title) == "" {
		return nil, model.NewInvalidTitleError()
	}
	if !model.ValidDueDate(in.DueDate) {
		return nil, model.NewInvalidDueDateError(in.DueDate)
	}
	priority := model.Priority(in.Priority)
	if !priority.Valid() {
		return nil, model.NewInvalidPriorityError(in.Priority)
	}

	now := time.Now()
	newTask := &model.Task{
		ID:        uuid.New().String(),
		UserID:    owner.ID,
		Title:     title,
		DueDate:   in.DueDate,
		Priority:  priority,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.tasks.Create(ctx, newTask); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	slog.Info("タスクを作成しました",
		slog.String("task_id", newTask.ID),
		slog.String("user_id", owner.ID),
	)

	return newTask, nil
}

// ListByUser は呼び出し元のユーザーが所有する全タスクを挿入順降順で返す。
func (s *Service) ListByUser(ctx context.Context) ([]*model.Task, error) {
	owner, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListByUserID(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// ListCompleted は呼び出し元のユーザーの完了済みタスクを挿入順降順で返す。
func (s *Service) ListCompleted(ctx context.Context) ([]*model.Task, error) {
	owner, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListCompletedByUserID(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("完了済みタスクの取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// Update は指定されたフィールドのみを更新する。
// 存在しないタスク・他ユーザーのタスクはTASK_NOT_FOUNDを返す。
func (s *Service) Update(ctx context.Context, taskID string, in UpdateInput) (*model.Task, error) {
	if _, err := s.authorize(ctx, taskID); err != nil {
		return nil, err
	}

	patch := repository.TaskPatch{}
	if in.Title != nil {
		title := s.sanitizer.Sanitize(*in.Title)
		if strings.TrimSpace(title) == "" {
			return nil, model.NewInvalidTitleError()
		}
		patch.Title = &title
	}
	if in.DueDate != nil {
		if !model.ValidDueDate(*in.DueDate) {
			return nil, model.NewInvalidDueDateError(*in.DueDate)
		}
		patch.DueDate = in.DueDate
	}
	if in.Priority != nil {
		priority := model.Priority(*in.Priority)
		if !priority.Valid() {
			return nil, model.NewInvalidPriorityError(*in.Priority)
		}
		patch.Priority = &priority
	}

	updated, err := s.tasks.Update(ctx, taskID, patch)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return updated, nil
}

// ToggleCompleted は保存されている完了状態を反転し、反転後の値を返す。
// 常に現在値に対するトグルであり、特定の値への強制セットではない。
func (s *Service) ToggleCompleted(ctx context.Context, taskID string) (*ToggleResult, error) {
	if _, err := s.authorize(ctx, taskID); err != nil {
		return nil, err
	}

	toggled, err := s.tasks.ToggleCompleted(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("完了状態の更新に失敗しました: %w", err)
	}
	if toggled == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	return &ToggleResult{Success: true, Completed: toggled.Completed}, nil
}

// Delete はタスクを完全に削除する。論理削除は行わない。
func (s *Service) Delete(ctx context.Context, taskID string) error {
	if _, err := s.authorize(ctx, taskID); err != nil {
		return err
	}

	deleted, err := s.tasks.Delete(ctx, taskID)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if deleted == nil {
		return model.NewTaskNotFoundError(taskID)
	}

	slog.Info("タスクを削除しました",
		slog.String("task_id", taskID),
		slog.String("user_id", deleted.UserID),
	)

	return nil
}

// authorize は呼び出し元を解決し、対象タスクの所有を検証する。
// タスクが存在しない場合と他ユーザーの所有の場合は、存在の有無を
// 区別させないよう同じTASK_NOT_FOUNDを返す。
func (s *Service) authorize(ctx context.Context, taskID string) (*model.Task, error) {
	owner, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if existing == nil || existing.UserID != owner.ID {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return existing, nil
}
