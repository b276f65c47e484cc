// Package search keeps published notes searchable in Meilisearch and Qdrant.
package search

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_indexer.go -package=mocks drafthub/internal/search Indexer

import (
	"context"
	"time"

	"drafthub/internal/storage"
)

// IndexNotes is the index (Meilisearch) and collection (Qdrant) of published notes.
const IndexNotes = "notes"

// VectorName is the named vector holding the body embedding.
const VectorName = "body_embed"

// NoteDocument is the denormalized search projection of a note: the hydrated
// note plus its plain text body and embedding.
type NoteDocument struct {
	storage.Note
	Body      string    `json:"body"`
	BodyEmbed []float32 `json:"body_embed"`
}

// NewNoteDocument builds the search document of note. A nil embedding is
// stored as an empty vector.
func NewNoteDocument(note storage.Note, body string, embed []float32) NoteDocument {
	if embed == nil {
		embed = []float32{}
	}
	if note.Topics == nil {
		note.Topics = []storage.TopicRef{}
	}
	return NoteDocument{Note: note, Body: body, BodyEmbed: embed}
}

// Indexer upserts documents. Upserting an existing id replaces the document.
type Indexer interface {
	Upsert(ctx context.Context, index, id string, doc NoteDocument) error
}

// Hit is one search result.
type Hit struct {
	NoteID     string    `json:"noteId"`
	Title      string    `json:"title"`
	Snippet    string    `json:"snippet,omitempty"`
	UserID     string    `json:"userId"`
	GroupID    string    `json:"groupId,omitempty"`
	ReleasedAt time.Time `json:"releasedAt"`
	Score      float32   `json:"score,omitempty"`
}

// Searcher finds notes matching a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}

const snippetRunes = 200

func snippet(body string) string {
	r := []rune(body)
	if len(r) <= snippetRunes {
		return body
	}
	return string(r[:snippetRunes]) + "…"
}
