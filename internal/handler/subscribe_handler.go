package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/subscribe"
)

// SubscribeHandler はライブクエリのSSEストリーミングを提供するHTTPハンドラー。
// クライアントはクエリ名を指定して購読し、ミューテーションのコミットごとに
// 再計算された結果スナップショットを受信する。
type SubscribeHandler struct {
	engine    *subscribe.Engine
	users     UserServiceInterface
	tasks     TaskServiceInterface
	heartbeat time.Duration
}

// NewSubscribeHandler はSubscribeHandlerを生成する。
func NewSubscribeHandler(
	engine *subscribe.Engine,
	users UserServiceInterface,
	tasks TaskServiceInterface,
	heartbeat time.Duration,
) *SubscribeHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &SubscribeHandler{
		engine:    engine,
		users:     users,
		tasks:     tasks,
		heartbeat: heartbeat,
	}
}

// sseEvent はSSEで配信されるスナップショットのペイロード。
type sseEvent struct {
	Seq  uint64 `json:"seq"`
	Data any    `json:"data"`
}

// Stream はライブクエリの購読を開始し、結果スナップショットをSSEで配信する。
// クライアント切断で購読は即座に解除される。
// GET /api/subscribe?query=tasks|completedTasks|me
func (h *SubscribeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	// 購読者の識別情報を解決し、読み取りセットのキーを決める
	current, err := h.users.GetCurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	streamCtx := r.Context()
	readSet, compute, apiErr := h.buildQuery(streamCtx, r.URL.Query().Get("query"), current.ID)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	sub, err := h.engine.Subscribe(streamCtx, readSet, compute)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer h.engine.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-streamCtx.Done():
			return
		case <-ticker.C:
			// 接続維持のためのコメント行
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-sub.Updates():
			snap := sub.Latest()
			if snap == nil {
				continue
			}
			if snap.Err != nil {
				handleStreamError(w, flusher, snap)
				continue
			}
			payload, err := json.Marshal(sseEvent{Seq: snap.Seq, Data: snap.Data})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// buildQuery はクエリ名から読み取りセットと再計算関数を構築する。
// 再計算は購読ストリーム自身のコンテキスト（認証済み識別情報を含む）で行う。
func (h *SubscribeHandler) buildQuery(streamCtx context.Context, query, userID string) (subscribe.ReadSet, subscribe.QueryFunc, *model.APIError) {
	switch query {
	case "tasks":
		return subscribe.ReadSet{Table: subscribe.TableTasks, UserID: userID},
			func(context.Context) (any, error) {
				return h.tasks.ListByUser(streamCtx)
			}, nil
	case "completedTasks":
		return subscribe.ReadSet{Table: subscribe.TableTasks, UserID: userID},
			func(context.Context) (any, error) {
				return h.tasks.ListCompleted(streamCtx)
			}, nil
	case "me":
		return subscribe.ReadSet{Table: subscribe.TableUsers, UserID: userID},
			func(context.Context) (any, error) {
				return h.users.GetCurrentUser(streamCtx)
			}, nil
	default:
		return subscribe.ReadSet{}, nil, &model.APIError{
			Code:     "INVALID_QUERY",
			Message:  fmt.Sprintf("未対応のクエリです: %s", query),
			Category: "validation",
			Action:   "tasks、completedTasks、me のいずれかを指定してください。",
		}
	}
}

// handleStreamError は再計算エラーをイベントとして配信する。
// ストリームは切断しない。次のミューテーションで回復する可能性がある。
func handleStreamError(w http.ResponseWriter, flusher http.Flusher, snap *subscribe.Snapshot) {
	payload, err := json.Marshal(map[string]any{
		"seq":   snap.Seq,
		"error": snap.Err.Error(),
	})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
	flusher.Flush()
}
