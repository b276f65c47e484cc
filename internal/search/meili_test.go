package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"drafthub/internal/storage"
)

func TestMeili_Upsert(t *testing.T) {
	var got []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/indexes/notes/documents" {
			t.Errorf("request = %s %s, want POST /indexes/notes/documents", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode documents: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"taskUid":7,"indexUid":"notes","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2026-03-01T12:00:00Z"}`))
	}))
	defer server.Close()

	note := sampleNote()
	m := NewMeili(server.URL, "")
	if err := m.Upsert(context.Background(), IndexNotes, note.ID, NewNoteDocument(note, "hello world", nil)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("documents = %d, want 1", len(got))
	}
	doc := got[0]
	if doc["id"] != note.ID || doc["title"] != "Hello" || doc["groupId"] != "g1" {
		t.Errorf("document = %v", doc)
	}
	if doc["body"] != "hello world" {
		t.Errorf("body = %v, want hello world", doc["body"])
	}
	if embed, ok := doc["body_embed"].([]any); !ok || len(embed) != 0 {
		t.Errorf("body_embed = %#v, want []", doc["body_embed"])
	}
	if topics, ok := doc["topics"].([]any); !ok || len(topics) != 1 {
		t.Errorf("topics = %#v, want one topic", doc["topics"])
	}
}

func TestMeili_Upsert_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid document","code":"invalid_document_fields","type":"invalid_request","link":""}`))
	}))
	defer server.Close()

	m := NewMeili(server.URL, "")
	doc := NewNoteDocument(storage.Note{ID: "n1"}, "", nil)
	if err := m.Upsert(context.Background(), IndexNotes, "n1", doc); err == nil {
		t.Error("Upsert() expected error for rejected document")
	}
}

func TestMeili_Search(t *testing.T) {
	var req map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/indexes/notes/search" {
			t.Errorf("request = %s %s, want POST /indexes/notes/search", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": [
				{"id":"n1","title":"Hello","body":"  hello world  ","userId":"u1","groupId":"g1","releasedAt":"2026-03-01T12:00:00Z","_rankingScore":0.75},
				{"id":"n2","title":"Other","body":"","userId":"u2","releasedAt":"not a time"}
			],
			"query":"hello",
			"processingTimeMs":1
		}`))
	}))
	defer server.Close()

	m := NewMeili(server.URL, "")
	hits, err := m.Search(context.Background(), "hello", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if req["q"] != "hello" || req["limit"] != float64(5) || req["showRankingScore"] != true {
		t.Errorf("search request = %v", req)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}

	first := hits[0]
	if first.NoteID != "n1" || first.Title != "Hello" || first.UserID != "u1" || first.GroupID != "g1" {
		t.Errorf("hits[0] = %+v", first)
	}
	if first.Snippet != "hello world" {
		t.Errorf("Snippet = %q, want trimmed body", first.Snippet)
	}
	if first.Score != 0.75 {
		t.Errorf("Score = %v, want 0.75", first.Score)
	}
	if !first.ReleasedAt.Equal(sampleNote().ReleasedAt) {
		t.Errorf("ReleasedAt = %v", first.ReleasedAt)
	}

	if hits[1].GroupID != "" || !hits[1].ReleasedAt.IsZero() || hits[1].Score != 0 {
		t.Errorf("hits[1] = %+v, want zero group, time and score", hits[1])
	}
}

func TestMeili_Search_DefaultLimit(t *testing.T) {
	var req map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":[],"query":"","processingTimeMs":0}`))
	}))
	defer server.Close()

	hits, err := NewMeili(server.URL, "").Search(context.Background(), "x", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want none", hits)
	}
	if req["limit"] != float64(20) {
		t.Errorf("limit = %v, want 20", req["limit"])
	}
}
