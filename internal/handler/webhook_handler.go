package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/user"
)

// WebhookSignatureHeader はwebhook署名を運ぶHTTPヘッダー。
const WebhookSignatureHeader = "X-Webhook-Signature"

// WebhookUserService はwebhookハンドラーが必要とするサービスインターフェース。
type WebhookUserService interface {
	Provision(ctx context.Context, in user.ProvisionInput) (*model.User, error)
	Upsert(ctx context.Context, in user.ProvisionInput) (*model.User, error)
	Remove(ctx context.Context, externalID string) error
}

// WebhookHandler は外部IdPのライフサイクルイベントを受信するHTTPハンドラー。
// ボディのHMAC-SHA256署名を共有シークレットで検証する。
type WebhookHandler struct {
	service WebhookUserService
	secret  []byte
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service WebhookUserService, secret string) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		secret:  []byte(secret),
	}
}

// webhookEvent はライフサイクルイベントのペイロード。
type webhookEvent struct {
	Type string           `json:"type"`
	Data webhookEventData `json:"data"`
}

// webhookEventData はイベントに含まれるユーザーデータ。
type webhookEventData struct {
	ID             string                `json:"id"`
	EmailAddresses []webhookEmailAddress `json:"email_addresses"`
	FirstName      string                `json:"first_name"`
	LastName       string                `json:"last_name"`
	ImageURL       string                `json:"image_url"`
	Username       string                `json:"username"`
}

type webhookEmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// HandleEvent はライフサイクルイベントを処理する。
// POST /webhooks/identity
//
// user.createdの重複配信はDUPLICATE_USERを成功として扱うことで冪等化する。
// 未知のイベントタイプは受理して無視する。
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if !h.verifySignature(body, r.Header.Get(WebhookSignatureHeader)) {
		slog.Warn("webhook署名の検証に失敗しました")
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if event.Data.ID == "" {
		writeInvalidRequestBody(w)
		return
	}

	input := user.ProvisionInput{
		ExternalID: event.Data.ID,
		Email:      primaryEmail(event.Data),
		FirstName:  event.Data.FirstName,
		LastName:   event.Data.LastName,
		Username:   event.Data.Username,
		ImageURL:   event.Data.ImageURL,
	}

	switch event.Type {
	case "user.created":
		_, err = h.service.Provision(r.Context(), input)
		if model.ErrorCode(err) == model.ErrCodeDuplicateUser {
			// 重複配信: 既に処理済みなので成功として応答する
			slog.Info("重複したuser.createdイベントをスキップします",
				slog.String("external_id", event.Data.ID),
			)
			err = nil
		}
	case "user.updated":
		_, err = h.service.Upsert(r.Context(), input)
	case "user.deleted":
		err = h.service.Remove(r.Context(), event.Data.ID)
	default:
		slog.Info("未対応のwebhookイベントタイプを無視します",
			slog.String("type", event.Type),
		)
	}

	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

// verifySignature はボディのHMAC-SHA256署名を検証する。
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignPayload はwebhookボディの署名を計算する。テストと送信側の実装で使用する。
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// primaryEmail は最初のメールアドレスを返す。イベントに含まれない場合は空文字。
func primaryEmail(data webhookEventData) string {
	if len(data.EmailAddresses) == 0 {
		return ""
	}
	return data.EmailAddresses[0].EmailAddress
}
