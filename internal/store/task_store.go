package store

import (
	"context"
	"sort"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// taskStore はtasksテーブルのリポジトリビュー。
type taskStore struct {
	s *Store
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (t *taskStore) FindByID(_ context.Context, id string) (*model.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.tasks[id]
	if !ok {
		return nil, nil
	}
	return copyTask(rec.task), nil
}

// ListByUserID はユーザーが所有する全タスクを挿入順降順で返す。
func (t *taskStore) ListByUserID(_ context.Context, userID string) ([]*model.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	ids := t.s.tasksByUser[userID]
	tasks := make([]*model.Task, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		tasks = append(tasks, copyTask(t.s.tasks[ids[i]].task))
	}
	return tasks, nil
}

// ListCompletedByUserID は完了済みタスクのみを挿入順降順で返す。
// (user_id)インデックスのパーティション内を線形にフィルタする。
func (t *taskStore) ListCompletedByUserID(_ context.Context, userID string) ([]*model.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	ids := t.s.tasksByUser[userID]
	tasks := []*model.Task{}
	for i := len(ids) - 1; i >= 0; i-- {
		rec := t.s.tasks[ids[i]]
		if rec.task.Completed {
			tasks = append(tasks, copyTask(rec.task))
		}
	}
	return tasks, nil
}

// Create はタスクを作成し、両インデックスへ登録する。
func (t *taskStore) Create(_ context.Context, task *model.Task) error {
	unlock := t.s.lockUser(task.UserID)
	defer unlock()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec := &taskRecord{task: copyTask(task), seq: t.s.nextSeq()}
	t.s.tasks[rec.task.ID] = rec
	t.s.tasksByUser[task.UserID] = append(t.s.tasksByUser[task.UserID], rec.task.ID)
	t.insertDueIndex(rec)
	return nil
}

// Update は指定されたフィールドのみを更新し、更新後のタスクを返す。
// 見つからない場合はnilを返す。部分パッチは単一のコミットとして適用される。
func (t *taskStore) Update(ctx context.Context, id string, patch repository.TaskPatch) (*model.Task, error) {
	return t.mutate(ctx, id, func(rec *taskRecord) {
		if patch.Title != nil {
			rec.task.Title = *patch.Title
		}
		if patch.DueDate != nil && *patch.DueDate != rec.task.DueDate {
			t.removeDueIndex(rec)
			rec.task.DueDate = *patch.DueDate
			t.insertDueIndex(rec)
		}
		if patch.Priority != nil {
			rec.task.Priority = *patch.Priority
		}
	})
}

// ToggleCompleted は保存されている完了状態を反転し、更新後のタスクを返す。
// 反転は常に保存済みの現在値に対して行われる。見つからない場合はnilを返す。
func (t *taskStore) ToggleCompleted(ctx context.Context, id string) (*model.Task, error) {
	return t.mutate(ctx, id, func(rec *taskRecord) {
		rec.task.Completed = !rec.task.Completed
	})
}

// mutate はタスク単位のミューテーションを所有ユーザーのロック下で適用する。
func (t *taskStore) mutate(_ context.Context, id string, apply func(rec *taskRecord)) (*model.Task, error) {
	// 所有ユーザーを特定してからそのユーザーのロックを取る。
	// ロック取得までの間に削除され得るため、取得後に再確認する。
	t.s.mu.RLock()
	rec, ok := t.s.tasks[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	unlock := t.s.lockUser(rec.task.UserID)
	defer unlock()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec, ok = t.s.tasks[id]
	if !ok {
		return nil, nil
	}

	apply(rec)
	rec.task.UpdatedAt = t.s.clock()
	t.s.nextSeq()

	return copyTask(rec.task), nil
}

// Delete は指定IDのタスクを完全に削除し、削除したタスクを返す。見つからない場合はnilを返す。
func (t *taskStore) Delete(_ context.Context, id string) (*model.Task, error) {
	t.s.mu.RLock()
	rec, ok := t.s.tasks[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	unlock := t.s.lockUser(rec.task.UserID)
	defer unlock()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec, ok = t.s.tasks[id]
	if !ok {
		return nil, nil
	}

	delete(t.s.tasks, id)
	t.s.tasksByUser[rec.task.UserID] = removeID(t.s.tasksByUser[rec.task.UserID], id)
	t.removeDueIndex(rec)
	t.s.nextSeq()

	return rec.task, nil
}

// DeleteByUserID はユーザーが所有する全タスクを削除し、削除件数を返す。
func (t *taskStore) DeleteByUserID(_ context.Context, userID string) (int, error) {
	unlock := t.s.lockUser(userID)
	defer unlock()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	ids := t.s.tasksByUser[userID]
	for _, id := range ids {
		delete(t.s.tasks, id)
	}
	delete(t.s.tasksByUser, userID)
	delete(t.s.tasksByUserDue, userID)
	if len(ids) > 0 {
		t.s.nextSeq()
	}
	return len(ids), nil
}

// insertDueIndex は(user_id, due_date)複合インデックスへ挿入する。
// due_date昇順、同値は挿入順昇順の位置を保つ。muの書き込みロック下で呼ぶこと。
func (t *taskStore) insertDueIndex(rec *taskRecord) {
	userID := rec.task.UserID
	ids := t.s.tasksByUserDue[userID]
	pos := sort.Search(len(ids), func(i int) bool {
		other := t.s.tasks[ids[i]]
		if other.task.DueDate != rec.task.DueDate {
			return other.task.DueDate > rec.task.DueDate
		}
		return other.seq > rec.seq
	})
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = rec.task.ID
	t.s.tasksByUserDue[userID] = ids
}

// removeDueIndex は(user_id, due_date)複合インデックスから取り除く。
// muの書き込みロック下で呼ぶこと。
func (t *taskStore) removeDueIndex(rec *taskRecord) {
	userID := rec.task.UserID
	t.s.tasksByUserDue[userID] = removeID(t.s.tasksByUserDue[userID], rec.task.ID)
}

// ListTasksDueBetween は期限がfrom以上to以下のタスクを期限昇順で返す。
// (user_id, due_date)複合インデックスのレンジスキャン。期限なしのタスクは含まない。
func (s *Store) ListTasksDueBetween(userID, from, to string) []*model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []*model.Task{}
	for _, id := range s.tasksByUserDue[userID] {
		rec := s.tasks[id]
		due := rec.task.DueDate
		if due == "" || due < from {
			continue
		}
		if due > to {
			break
		}
		tasks = append(tasks, copyTask(rec.task))
	}
	return tasks
}

// compile-time interface check
var _ repository.TaskRepository = (*taskStore)(nil)
