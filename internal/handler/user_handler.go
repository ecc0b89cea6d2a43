package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
	GetProfile(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, patch user.ProfilePatch) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	metrics MutationRecorder
}

// NewUserHandler はUserHandlerを生成する。metricsがnilの場合は記録なしで動作する。
func NewUserHandler(service UserServiceInterface, metrics MutationRecorder) *UserHandler {
	if metrics == nil {
		metrics = nopMutationRecorder{}
	}
	return &UserHandler{
		service: service,
		metrics: metrics,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。nilフィールドは変更しない。
type updateProfileRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
	ImageURL  *string `json:"image_url,omitempty"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Username   string `json:"username"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Me は呼び出し元自身のユーザー情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetCurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(u))
}

// GetProfile は指定IDのユーザープロフィールを返す。
// 見つからない場合は404を返す厳格な読み取り。
// GET /api/users/:id
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	u, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(u))
}

// UpdateProfile はプロフィールの指定フィールドのみを更新する。
// 自分以外のプロフィールは更新できない。
// PATCH /api/users/:id
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	// 所有チェック: 対象IDが呼び出し元自身であること
	current, err := h.service.GetCurrentUser(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if current.ID != userID {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), userID, user.ProfilePatch{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordMutation("update_user_profile")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(updated))
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
// ストレージハンドルのままの画像参照はURLとして返さない。
func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:         u.ID,
		ExternalID: u.ExternalID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		CreatedAt:  u.CreatedAt.UnixMilli(),
		UpdatedAt:  u.UpdatedAt.UnixMilli(),
	}
	if u.Image.Kind == model.ImageRefExternalURL {
		resp.ImageURL = u.Image.Value
	}
	return resp
}
