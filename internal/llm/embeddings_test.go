package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewEmbeddingsClient(t *testing.T) {
	client := NewEmbeddingsClient("http://localhost:8080", "test-key", "test-model", 768)
	if client == nil {
		t.Fatal("NewEmbeddingsClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8080" {
		t.Errorf("NewEmbeddingsClient() BaseURL = %v, want http://localhost:8080", client.BaseURL)
	}
	if client.ExpectedSize != 768 {
		t.Errorf("NewEmbeddingsClient() ExpectedSize = %v, want 768", client.ExpectedSize)
	}
}

func writeEmbeddings(w http.ResponseWriter, vectors ...[]float64) {
	resp := EmbeddingsResponse{Data: []EmbeddingData{}}
	for i, v := range vectors {
		resp.Data = append(resp.Data, EmbeddingData{Index: i, Embedding: v})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestEmbeddingsClient_EmbedTexts(t *testing.T) {
	tests := []struct {
		name         string
		texts        []string
		expectedSize int
		serverResp   func(w http.ResponseWriter, r *http.Request)
		wantErr      bool
		wantCount    int
	}{
		{
			name:         "successful embedding",
			texts:        []string{"Hello", "World"},
			expectedSize: 768,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/embeddings" {
					t.Errorf("expected /v1/embeddings, got %s", r.URL.Path)
				}
				writeEmbeddings(w, make([]float64, 768), make([]float64, 768))
			},
			wantCount: 2,
		},
		{
			name:         "any size accepted when expected size is zero",
			texts:        []string{"Hello"},
			expectedSize: 0,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				writeEmbeddings(w, make([]float64, 5))
			},
			wantCount: 1,
		},
		{
			name:         "empty input",
			texts:        []string{},
			expectedSize: 768,
			serverResp:   func(w http.ResponseWriter, r *http.Request) {},
			wantErr:      true,
		},
		{
			name:         "wrong embedding count",
			texts:        []string{"Hello", "World"},
			expectedSize: 768,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				writeEmbeddings(w, make([]float64, 768))
			},
			wantErr: true,
		},
		{
			name:         "wrong vector size",
			texts:        []string{"Hello"},
			expectedSize: 768,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				writeEmbeddings(w, make([]float64, 512))
			},
			wantErr: true,
		},
		{
			name:         "server error",
			texts:        []string{"Hello"},
			expectedSize: 768,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("quota exceeded"))
			},
			wantErr: true,
		},
		{
			name:         "malformed response",
			texts:        []string{"Hello"},
			expectedSize: 768,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewEmbeddingsClient(server.URL, "test-key", "test-model", tt.expectedSize)
			embeddings, err := client.EmbedTexts(context.Background(), tt.texts)

			if tt.wantErr {
				if err == nil {
					t.Errorf("EmbedTexts() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("EmbedTexts() unexpected error: %v", err)
			}
			if len(embeddings) != tt.wantCount {
				t.Errorf("EmbedTexts() returned %d embeddings, want %d", len(embeddings), tt.wantCount)
			}
		})
	}
}

func TestEmbeddingsClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, []float64{1.5, 2.5, 3.5})
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "", "test-model", 3)
	emb, err := client.Embed(context.Background(), "test")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	want := []float32{1.5, 2.5, 3.5}
	if len(emb) != len(want) {
		t.Fatalf("Embed() size = %d, want %d", len(emb), len(want))
	}
	for i := range want {
		if emb[i] != want[i] {
			t.Errorf("Embed()[%d] = %v, want %v", i, emb[i], want[i])
		}
	}
}

func TestEmbeddingsClient_Embed_EmptyDataSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "test-model", 0)
	if _, err := client.Embed(context.Background(), "test"); !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("Embed() error = %v, want ErrNoEmbedding", err)
	}
}

func TestEmbeddingsClient_Embed_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewEmbeddingsClient(server.URL, "test-key", "test-model", 0)
	if _, err := client.Embed(ctx, "test"); err == nil {
		t.Error("Embed() expected error for canceled context")
	}
}
