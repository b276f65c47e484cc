package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8081", "test-key", "test-model")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8081" {
		t.Errorf("NewClient() BaseURL = %v, want http://localhost:8081", client.BaseURL)
	}
	if client.Model != "test-model" {
		t.Errorf("NewClient() Model = %v, want test-model", client.Model)
	}
	if client.client == nil {
		t.Error("NewClient() client should not be nil")
	}
}

func TestClient_Continue(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		serverResp func(w http.ResponseWriter, r *http.Request)
		wantReply  string
		wantErr    bool
	}{
		{
			name:   "successful continuation",
			prefix: "Our deploy process starts with",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
				}
				if !strings.Contains(r.Header.Get("Authorization"), "Bearer") {
					t.Error("missing Authorization header")
				}

				var req ChatRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if len(req.Messages) != 2 {
					t.Fatalf("expected 2 messages, got %d", len(req.Messages))
				}
				if req.Messages[0].Role != "system" {
					t.Errorf("first message role = %s, want system", req.Messages[0].Role)
				}
				if req.Messages[1].Content != "Our deploy process starts with" {
					t.Errorf("user message = %q", req.Messages[1].Content)
				}

				resp := ChatResponse{
					ID:     "test-id",
					Object: "chat.completion",
					Choices: []ChatChoice{
						{Message: Message{Role: "assistant", Content: " a build."}, FinishReason: "stop"},
					},
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(resp)
			},
			wantReply: " a build.",
		},
		{
			name:   "no choices returned",
			prefix: "Hello",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(ChatResponse{Choices: []ChatChoice{}})
			},
			wantErr: true,
		},
		{
			name:   "server error",
			prefix: "Hello",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("internal server error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model")
			reply, err := client.Continue(context.Background(), tt.prefix, ChatParams{})

			if tt.wantErr {
				if err == nil {
					t.Errorf("Continue() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Continue() unexpected error: %v", err)
			}
			if reply != tt.wantReply {
				t.Errorf("Continue() reply = %q, want %q", reply, tt.wantReply)
			}
		})
	}
}

func TestClient_ChatWithMessages_ModelOverride(t *testing.T) {
	tests := []struct {
		name      string
		params    ChatParams
		wantModel string
	}{
		{name: "default model", params: ChatParams{}, wantModel: "test-model"},
		{name: "override model", params: ChatParams{Model: "custom-model", MaxTokens: 100}, wantModel: "custom-model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req ChatRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.Model != tt.wantModel {
					t.Errorf("model = %s, want %s", req.Model, tt.wantModel)
				}
				if req.MaxTokens != tt.params.MaxTokens {
					t.Errorf("max_tokens = %d, want %d", req.MaxTokens, tt.params.MaxTokens)
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(ChatResponse{
					Choices: []ChatChoice{{Message: Message{Content: "Response"}}},
				})
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model")
			reply, err := client.ChatWithMessages(context.Background(), []Message{{Role: "user", Content: "Hello"}}, tt.params)
			if err != nil {
				t.Fatalf("ChatWithMessages() error = %v", err)
			}
			if reply != "Response" {
				t.Errorf("ChatWithMessages() reply = %v, want Response", reply)
			}
		})
	}
}
