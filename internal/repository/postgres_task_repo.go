package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taskdeck/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `id, user_id, title, due_date, priority, completed, created_at, updated_at`

// scanTask は1行をmodel.Taskへ読み取る。
func scanTask(row *sql.Row) (*model.Task, error) {
	task := &model.Task{}
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title,
		&task.DueDate, &task.Priority, &task.Completed,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}
	return task, nil
}

// listByUser は指定の条件でユーザーのタスクを挿入順降順で取得する。
func (r *PostgresTaskRepo) listByUser(ctx context.Context, query string, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title,
			&task.DueDate, &task.Priority, &task.Completed,
			&task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// ListByUserID はユーザーが所有する全タスクを挿入順降順で返す。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	return r.listByUser(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY seq DESC`,
		userID,
	)
}

// ListCompletedByUserID は完了済みタスクのみを挿入順降順で返す。
// (user_id)インデックスで絞り込んだパーティション内のcompletedフィルタ。
func (r *PostgresTaskRepo) ListCompletedByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	return r.listByUser(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND completed = TRUE ORDER BY seq DESC`,
		userID,
	)
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, due_date, priority, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.UserID, task.Title,
		task.DueDate, task.Priority, task.Completed,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update は指定されたフィールドのみを更新し、更新後のタスクを返す。
// nilフィールドはCOALESCEで既存値を維持する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) Update(ctx context.Context, id string, patch TaskPatch) (*model.Task, error) {
	var priority *string
	if patch.Priority != nil {
		v := string(*patch.Priority)
		priority = &v
	}

	task, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks SET
		    title      = COALESCE($2, title),
		    due_date   = COALESCE($3, due_date),
		    priority   = COALESCE($4, priority),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, patch.Title, patch.DueDate, priority,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// ToggleCompleted は保存されている完了状態を原子的に反転し、更新後のタスクを返す。
// 見つからない場合はnilを返す。
func (r *PostgresTaskRepo) ToggleCompleted(ctx context.Context, id string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks SET completed = NOT completed, updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}
	return task, nil
}

// Delete は指定IDのタスクを完全に削除し、削除したタスクを返す。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = $1 RETURNING `+taskColumns,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	return task, nil
}

// DeleteByUserID はユーザーが所有する全タスクを削除し、削除件数を返す。
func (r *PostgresTaskRepo) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks by user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
