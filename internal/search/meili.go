package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"drafthub/internal/contextutil"
)

// Meili indexes notes in Meilisearch for full-text search.
type Meili struct {
	client meili.ServiceManager
}

// NewMeili creates a Meilisearch client. It does not contact the server.
func NewMeili(url, apiKey string) *Meili {
	return &Meili{client: meili.New(url, meili.WithAPIKey(apiKey))}
}

// ConfigureIndex creates the notes index and sets its attributes. Failing to
// create an index that already exists is not an error.
func (m *Meili) ConfigureIndex(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := m.client.CreateIndexWithContext(ctx, &meili.IndexConfig{
		Uid:        IndexNotes,
		PrimaryKey: "id",
	}); err != nil {
		logger.DebugContext(ctx, "create index (may already exist)", "index", IndexNotes, "error", err)
	}

	index := m.client.Index(IndexNotes)
	filterable := []interface{}{"userId", "groupId", "topics.handle"}
	if _, err := index.UpdateFilterableAttributesWithContext(ctx, &filterable); err != nil {
		return fmt.Errorf("failed to update filterable attributes: %w", err)
	}
	searchable := []string{"title", "body", "topics.name", "user.name"}
	if _, err := index.UpdateSearchableAttributesWithContext(ctx, &searchable); err != nil {
		return fmt.Errorf("failed to update searchable attributes: %w", err)
	}

	logger.InfoContext(ctx, "search index configured", "index", IndexNotes)
	return nil
}

// Upsert adds or replaces doc. Meilisearch applies the write asynchronously;
// a nil error means the task was accepted.
func (m *Meili) Upsert(ctx context.Context, index, id string, doc NoteDocument) error {
	logger := contextutil.LoggerFromContext(ctx)

	if doc.ID != id {
		return fmt.Errorf("document id %q does not match %q", doc.ID, id)
	}

	task, err := m.client.Index(index).AddDocumentsWithContext(ctx, []NoteDocument{doc}, nil)
	if err != nil {
		logger.ErrorContext(ctx, "failed to index document", "index", index, "note_id", id, "error", err)
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}

	logger.DebugContext(ctx, "indexed document", "index", index, "note_id", id, "task_uid", task.TaskUID)
	return nil
}

// Search runs a full-text query over the notes index.
func (m *Meili) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}

	resp, err := m.client.Index(IndexNotes).SearchWithContext(ctx, query, &meili.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id", "title", "body", "userId", "groupId", "releasedAt"},
		ShowRankingScore:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		hit := Hit{
			NoteID:  decodeString(h, "id"),
			Title:   decodeString(h, "title"),
			Snippet: snippet(strings.TrimSpace(decodeString(h, "body"))),
			UserID:  decodeString(h, "userId"),
			GroupID: decodeString(h, "groupId"),
		}
		if t, err := time.Parse(time.RFC3339Nano, decodeString(h, "releasedAt")); err == nil {
			hit.ReleasedAt = t
		}
		if raw, ok := h["_rankingScore"]; ok {
			var score float64
			if err := json.Unmarshal(raw, &score); err == nil {
				hit.Score = float32(score)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Ping checks that Meilisearch is reachable.
func (m *Meili) Ping(ctx context.Context) error {
	_, err := m.client.HealthWithContext(ctx)
	return err
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
