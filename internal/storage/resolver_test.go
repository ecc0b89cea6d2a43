package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPResolver_ResolveURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/resolve/handle-123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url": "https://cdn.example.com/img/abc.png"}`))
	}))
	defer server.Close()

	r := NewHTTPResolver(server.URL, server.Client())
	url, err := r.ResolveURL(context.Background(), "handle-123")
	if err != nil {
		t.Fatalf("ResolveURL returned error: %v", err)
	}
	if url != "https://cdn.example.com/img/abc.png" {
		t.Errorf("url = %q, want %q", url, "https://cdn.example.com/img/abc.png")
	}
}

func TestHTTPResolver_ResolveURL_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r := NewHTTPResolver(server.URL, server.Client())
	if _, err := r.ResolveURL(context.Background(), "missing"); err == nil {
		t.Error("expected error for 404 response, got nil")
	}
}

func TestHTTPResolver_ResolveURL_EmptyURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url": ""}`))
	}))
	defer server.Close()

	r := NewHTTPResolver(server.URL, server.Client())
	if _, err := r.ResolveURL(context.Background(), "handle"); err == nil {
		t.Error("expected error for empty URL in response, got nil")
	}
}

// ハンドルに記号が含まれてもパスとして安全にエンコードされることを検証
func TestHTTPResolver_ResolveURL_EscapesHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/storage/resolve/a%2Fb" {
			t.Errorf("unexpected escaped path: %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`{"url": "https://cdn.example.com/x"}`))
	}))
	defer server.Close()

	r := NewHTTPResolver(server.URL, server.Client())
	if _, err := r.ResolveURL(context.Background(), "a/b"); err != nil {
		t.Fatalf("ResolveURL returned error: %v", err)
	}
}
