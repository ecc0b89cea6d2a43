// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	Create(ctx context.Context, in task.CreateInput) (*model.Task, error)
	ListByUser(ctx context.Context) ([]*model.Task, error)
	ListCompleted(ctx context.Context) ([]*model.Task, error)
	Update(ctx context.Context, taskID string, in task.UpdateInput) (*model.Task, error)
	ToggleCompleted(ctx context.Context, taskID string) (*task.ToggleResult, error)
	Delete(ctx context.Context, taskID string) error
}

// MutationRecorder はコミットされたミューテーションの記録インターフェース。
type MutationRecorder interface {
	RecordMutation(operation string)
}

// nopMutationRecorder は記録なしのデフォルト実装。
type nopMutationRecorder struct{}

func (nopMutationRecorder) RecordMutation(string) {}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
	metrics MutationRecorder
}

// NewTaskHandler はTaskHandlerを生成する。metricsがnilの場合は記録なしで動作する。
func NewTaskHandler(service TaskServiceInterface, metrics MutationRecorder) *TaskHandler {
	if metrics == nil {
		metrics = nopMutationRecorder{}
	}
	return &TaskHandler{
		service: service,
		metrics: metrics,
	}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title    string `json:"title"`
	DueDate  string `json:"due_date,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// updateTaskRequest はタスク更新リクエストのボディ。nilフィールドは変更しない。
type updateTaskRequest struct {
	Title    *string `json:"title,omitempty"`
	DueDate  *string `json:"due_date,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueDate   string `json:"due_date,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// taskListResponse はタスク一覧のAPIレスポンス。
// dataは"skip"モード（ユーザー未解決）のときnullになる。
type taskListResponse struct {
	Data []taskResponse `json:"data"`
}

// toggleResponse は完了状態トグルのAPIレスポンス。
type toggleResponse struct {
	Success   bool `json:"success"`
	Completed bool `json:"completed"`
}

// CreateTask はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), task.CreateInput{
		Title:    req.Title,
		DueDate:  req.DueDate,
		Priority: req.Priority,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMutation("create_task")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTaskResponse(created))
}

// ListTasks はタスク一覧を取得する。completed=trueで完了済みのみに絞り込む。
// ユーザーがまだプロビジョニングされていない場合はエラーにせず
// {"data": null} を返す（クライアント側の"skip"モード）。
// GET /api/tasks?completed=true
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []*model.Task
		err   error
	)
	if r.URL.Query().Get("completed") == "true" {
		tasks, err = h.service.ListCompleted(r.Context())
	} else {
		tasks, err = h.service.ListByUser(r.Context())
	}

	if err != nil {
		if model.ErrorCode(err) == model.ErrCodeUserNotFound {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"data": nil})
			return
		}
		handleServiceError(w, err)
		return
	}

	resp := taskListResponse{Data: make([]taskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Data = append(resp.Data, toTaskResponse(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateTask はタスクの指定フィールドのみを更新する。
// PATCH /api/tasks/:id
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	updated, err := h.service.Update(r.Context(), taskID, task.UpdateInput{
		Title:    req.Title,
		DueDate:  req.DueDate,
		Priority: req.Priority,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMutation("update_task")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(updated))
}

// ToggleTask は完了状態を反転し、反転後の値を返す。
// POST /api/tasks/:id/toggle
func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	result, err := h.service.ToggleCompleted(r.Context(), taskID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMutation("toggle_task")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toggleResponse{
		Success:   result.Success,
		Completed: result.Completed,
	})
}

// DeleteTask はタスクを完全に削除する。
// DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), taskID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMutation("delete_task")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// --- ヘルパー関数 ---

// toTaskResponse はmodel.TaskからAPIレスポンスに変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:        t.ID,
		Title:     t.Title,
		DueDate:   t.DueDate,
		Priority:  string(t.Priority),
		Completed: t.Completed,
		CreatedAt: t.CreatedAt.UnixMilli(),
		UpdatedAt: t.UpdatedAt.UnixMilli(),
	}
}

// writeInvalidRequestBody はリクエストボディの解析失敗レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForErrorCode(apiErr.Code), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
