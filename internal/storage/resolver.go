// Package storage は内部ストレージハンドルのURL解決を提供する。
//
// 画像のアップロード自体は外部のストレージサービスが担う。本パッケージは
// ユーザーレコードに保存されたストレージハンドルを、クライアントが取得可能な
// URLへ解決することだけを行う。
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// URLResolver はストレージハンドルを取得可能なURLへ解決するインターフェース。
type URLResolver interface {
	// ResolveURL はハンドルに対応する取得用URLを返す。
	ResolveURL(ctx context.Context, handle string) (string, error)
}

// HTTPResolver はストレージサービスの解決エンドポイントを呼び出すURLResolver。
// clientにはSSRF防止機能付きのHTTPクライアントを渡すことを想定している。
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver はHTTPResolverを生成する。
// baseURLはストレージサービスのルートURL（例: "https://storage.example.com"）。
func NewHTTPResolver(baseURL string, client *http.Client) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResolver{baseURL: baseURL, client: client}
}

// resolveResponse は解決エンドポイントのレスポンスボディ。
type resolveResponse struct {
	URL string `json:"url"`
}

// ResolveURL はGET {baseURL}/storage/resolve/{handle} を呼び出し、取得用URLを返す。
func (r *HTTPResolver) ResolveURL(ctx context.Context, handle string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/resolve/%s", r.baseURL, url.PathEscape(handle))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build resolve request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call storage resolver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("storage resolver returned status %d", resp.StatusCode)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode resolver response: %w", err)
	}
	if body.URL == "" {
		return "", fmt.Errorf("storage resolver returned empty URL")
	}

	return body.URL, nil
}

// compile-time interface check
var _ URLResolver = (*HTTPResolver)(nil)
