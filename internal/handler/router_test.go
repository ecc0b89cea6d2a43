package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/identity"
	"github.com/hitoshi/taskdeck/internal/metrics"
	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/security"
	"github.com/hitoshi/taskdeck/internal/store"
	"github.com/hitoshi/taskdeck/internal/subscribe"
	"github.com/hitoshi/taskdeck/internal/task"
	"github.com/hitoshi/taskdeck/internal/user"
)

// testEnv はルーター結合テスト用の実依存一式。
type testEnv struct {
	server   *httptest.Server
	verifier *auth.HMACVerifier
	limiter  *middleware.RateLimiter
}

// newTestEnv はインメモリストアと実サービスでルーターを組み立てる。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.New()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	engine := subscribe.NewEngine(collector)

	users := subscribe.NewNotifyingUserRepo(st.Users(), engine)
	tasks := subscribe.NewNotifyingTaskRepo(st.Tasks(), engine)

	resolver := identity.NewResolver(users)
	sanitizer := security.NewTextSanitizer()
	guard := security.NewImageURLGuard()

	userSvc := user.NewService(users, tasks, resolver, nil, sanitizer, guard)
	taskSvc := task.NewService(tasks, resolver, sanitizer)

	verifier := auth.NewHMACVerifier("router-test-secret")
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	router := NewRouter(&RouterDeps{
		TokenVerifier:     verifier,
		CORSAllowedOrigin: "https://app.example.com",
		RateLimiter:       limiter,
		WebhookService:    userSvc,
		WebhookSecret:     testWebhookSecret,
		UserService:       userSvc,
		TaskService:       taskSvc,
		Engine:            engine,
		HeartbeatInterval: time.Minute,
		Metrics:           collector,
		Gatherer:          reg,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, verifier: verifier, limiter: limiter}
}

// provisionViaWebhook はwebhook経由でユーザーを作成する。
func (env *testEnv) provisionViaWebhook(t *testing.T, externalID string) {
	t.Helper()
	body := fmt.Sprintf(`{"type": "user.created", "data": {"id": %q, "first_name": "Test", "last_name": "User"}}`, externalID)
	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/webhooks/identity", strings.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, SignPayload(testWebhookSecret, []byte(body)))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", resp.StatusCode)
	}
}

// do は認証トークン付きでリクエストを送る。
func (env *testEnv) do(t *testing.T, method, path, externalID, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequest(method, env.server.URL+path, reader)
	if externalID != "" {
		req.Header.Set("Authorization", "Bearer "+env.verifier.Issue(externalID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func TestRouter_Healthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRouter_APIRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/tasks", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

// webhookプロビジョニング → タスク作成 → 一覧取得の一連の流れ
func TestRouter_TaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.provisionViaWebhook(t, "ext-1")

	// 作成
	resp := env.do(t, http.MethodPost, "/api/tasks", "ext-1", `{"title": "Buy milk", "priority": "High"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created taskResponse
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	// トグル
	resp = env.do(t, http.MethodPost, "/api/tasks/"+created.ID+"/toggle", "ext-1", "")
	var toggled toggleResponse
	json.NewDecoder(resp.Body).Decode(&toggled)
	resp.Body.Close()
	if !toggled.Completed {
		t.Error("expected completed=true after toggle")
	}

	// 完了済み一覧に現れる
	resp = env.do(t, http.MethodGet, "/api/tasks?completed=true", "ext-1", "")
	var list taskListResponse
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Data) != 1 || list.Data[0].ID != created.ID {
		t.Errorf("completed list = %+v, want [%s]", list.Data, created.ID)
	}

	// 削除
	resp = env.do(t, http.MethodDelete, "/api/tasks/"+created.ID, "ext-1", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d, want 200", resp.StatusCode)
	}
}

// 未プロビジョニングのユーザーによる一覧は"skip"モードで200を返す
func TestRouter_ListTasks_SkipModeForUnprovisionedUser(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/tasks", "ext-unprovisioned", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&body)
	if string(body["data"]) != "null" {
		t.Errorf("data = %s, want null", body["data"])
	}
}

// SSE購読: 初回スナップショットとミューテーション後の再配信を受信する
func TestRouter_SubscribeStream(t *testing.T) {
	env := newTestEnv(t)
	env.provisionViaWebhook(t, "ext-1")

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/subscribe?query=tasks", nil)
	req.Header.Set("Authorization", "Bearer "+env.verifier.Issue("ext-1"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// 初回スナップショット（空一覧）
	first := readSSEData(t, reader)
	if first.Data == nil {
		// 空一覧は[]としてマーシャルされる
		t.Error("expected non-nil data in initial snapshot")
	}

	// ミューテーションで再配信される
	createResp := env.do(t, http.MethodPost, "/api/tasks", "ext-1", `{"title": "pushed"}`)
	createResp.Body.Close()

	second := readSSEData(t, reader)
	if second.Seq <= first.Seq {
		t.Errorf("second seq = %d, want > %d", second.Seq, first.Seq)
	}
	items, ok := second.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("second snapshot data = %v, want 1 task", second.Data)
	}
}

// readSSEData は次のdata:イベントを読み取ってデコードする。
func readSSEData(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)

	for {
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			lineCh <- line
		}()

		select {
		case <-deadline:
			t.Fatal("timed out waiting for SSE event")
		case err := <-errCh:
			t.Fatalf("failed to read SSE stream: %v", err)
		case line := <-lineCh:
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event sseEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("failed to decode SSE payload: %v", err)
			}
			return event
		}
	}
}

func TestRouter_InvalidSubscribeQuery(t *testing.T) {
	env := newTestEnv(t)
	env.provisionViaWebhook(t, "ext-1")

	resp := env.do(t, http.MethodGet, "/api/subscribe?query=everything", "ext-1", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRouter_UserProfileFlow(t *testing.T) {
	env := newTestEnv(t)
	env.provisionViaWebhook(t, "ext-1")

	// 自分のプロフィール
	resp := env.do(t, http.MethodGet, "/api/users/me", "ext-1", "")
	var me userResponse
	json.NewDecoder(resp.Body).Decode(&me)
	resp.Body.Close()
	if me.Username != "TestUser" {
		t.Errorf("Username = %q, want TestUser (first+last default)", me.Username)
	}

	// 更新
	resp = env.do(t, http.MethodPatch, "/api/users/"+me.ID, "ext-1", `{"username": "renamed"}`)
	var updated userResponse
	json.NewDecoder(resp.Body).Decode(&updated)
	resp.Body.Close()
	if updated.Username != "renamed" {
		t.Errorf("Username = %q, want renamed", updated.Username)
	}

	// 厳格な読み取り: 存在しないIDは404
	resp = env.do(t, http.MethodGet, "/api/users/missing", "ext-1", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// user.deletedイベントでユーザーとタスクがカスケード削除される
func TestRouter_UserDeletedCascades(t *testing.T) {
	env := newTestEnv(t)
	env.provisionViaWebhook(t, "ext-1")

	resp := env.do(t, http.MethodPost, "/api/tasks", "ext-1", `{"title": "to be removed"}`)
	resp.Body.Close()

	body := `{"type": "user.deleted", "data": {"id": "ext-1"}}`
	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/webhooks/identity", strings.NewReader(body))
	req.Header.Set(WebhookSignatureHeader, SignPayload(testWebhookSecret, []byte(body)))
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	delResp.Body.Close()

	// ユーザーが消えたので一覧は"skip"モードになる
	resp = env.do(t, http.MethodGet, "/api/tasks", "ext-1", "")
	defer resp.Body.Close()
	var listBody map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&listBody)
	if string(listBody["data"]) != "null" {
		t.Errorf("data = %s after user deletion, want null", listBody["data"])
	}
}
