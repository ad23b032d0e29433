package groq

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sanchita-suni/Calyx/pkg/core"
)

func TestNew_AppliesOptions(t *testing.T) {
	client := &http.Client{}
	p := New("test-key", WithBaseURL("https://example.com"), WithHTTPClient(client), WithModel("m"))

	if p.baseURL != "https://example.com" {
		t.Fatalf("baseURL = %q, want https://example.com", p.baseURL)
	}
	if p.httpClient != client {
		t.Fatal("httpClient option was not applied")
	}
	if p.inner == nil {
		t.Fatal("expected inner OpenAI provider to be initialized")
	}
	if p.Name() != "groq" {
		t.Fatalf("name = %q, want groq", p.Name())
	}
	if p.inner.Name() != "groq" {
		t.Fatalf("inner name = %q, want groq", p.inner.Name())
	}
}

func TestStreamCompletion_DefaultsModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	req := &core.CompletionRequest{}
	s, err := p.StreamCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("StreamCompletion() error = %v", err)
	}
	defer s.Close()

	part, err := s.Next()
	if err != nil || part != "ok" {
		t.Fatalf("Next() = %q, %v", part, err)
	}
	if gotModel != DefaultModel {
		t.Fatalf("model = %q, want %q", gotModel, DefaultModel)
	}
	if req.Model != "" {
		t.Fatal("caller's request must not be mutated")
	}
}
