package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"drafthub/internal/contextutil"
)

// Qdrant stores note embeddings in a Qdrant collection under a named vector,
// with the hydrated note as payload.
type Qdrant struct {
	client *qdrant.Client
}

// qdrantAddress derives the gRPC host and port from the HTTP URL.
// The gRPC port is the HTTP port + 1 (6334 when no port is given).
func qdrantAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// NewQdrant creates a Qdrant client. urlStr is the HTTP address, e.g. "http://localhost:6333".
func NewQdrant(urlStr string) (*Qdrant, error) {
	host, port, err := qdrantAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &Qdrant{client: client}, nil
}

// Upsert writes doc as a point. An empty embedding stores the point without
// a vector so the note is still reachable by id and payload.
func (s *Qdrant) Upsert(ctx context.Context, collection, id string, doc NoteDocument) error {
	logger := contextutil.LoggerFromContext(ctx)

	vectors := map[string]*qdrant.Vector{}
	if len(doc.BodyEmbed) > 0 {
		vectors[VectorName] = qdrant.NewVector(doc.BodyEmbed...)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(id),
				Vectors: qdrant.NewVectorsMap(vectors),
				Payload: qdrant.NewValueMap(notePayload(doc)),
			},
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert point", "collection", collection, "note_id", id, "error", err)
		return fmt.Errorf("failed to upsert point %s: %w", id, err)
	}

	logger.DebugContext(ctx, "upserted point", "collection", collection, "note_id", id, "dims", len(doc.BodyEmbed))
	return nil
}

// Indexer returns an Indexer that writes into collection whatever index name
// the caller passes.
func (s *Qdrant) Indexer(collection string) Indexer {
	return collectionIndexer{store: s, collection: collection}
}

type collectionIndexer struct {
	store      *Qdrant
	collection string
}

func (c collectionIndexer) Upsert(ctx context.Context, _ string, id string, doc NoteDocument) error {
	return c.store.Upsert(ctx, c.collection, id, doc)
}

// SearchVector returns the k notes closest to query.
func (s *Qdrant) SearchVector(ctx context.Context, collection string, query []float32, k int) ([]Hit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	limit := uint64(k)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Using:          qdrant.PtrOf(VectorName),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]Hit, 0, len(scoredPoints))
	for _, p := range scoredPoints {
		hits = append(hits, hitFromPayload(p.GetId().GetUuid(), p.Score, convertPayloadToMap(p.Payload)))
	}

	logger.InfoContext(ctx, "vector search completed", "collection", collection, "k", k, "results", len(hits))
	return hits, nil
}

// CollectionExists checks if a collection exists.
func (s *Qdrant) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection creates the collection with the named body vector, or
// validates the vector size of an existing one.
func (s *Qdrant) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", vectorSize)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				VectorName: {
					Size:     uint64(vectorSize),
					Distance: qdrant.Distance_Cosine,
				},
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[VectorName]
	if params == nil {
		return fmt.Errorf("collection %s has no %s vector", collection, VectorName)
	}
	if int(params.Size) != vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, params.Size)
	}

	logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
	return nil
}

// Ping checks that Qdrant answers.
func (s *Qdrant) Ping(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	return err
}

// Close releases the gRPC connection.
func (s *Qdrant) Close() error {
	return s.client.Close()
}

// notePayload flattens doc into payload values qdrant.NewValueMap accepts.
func notePayload(doc NoteDocument) map[string]any {
	topics := make([]any, 0, len(doc.Topics))
	for _, t := range doc.Topics {
		topics = append(topics, map[string]any{
			"topicId": t.TopicID,
			"handle":  t.Handle,
			"name":    t.Name,
			"order":   int64(t.Order),
		})
	}

	var group any
	if doc.Group != nil {
		group = map[string]any{
			"id":     doc.Group.ID,
			"handle": doc.Group.Handle,
			"name":   doc.Group.Name,
			"type":   doc.Group.Type,
		}
	}

	return map[string]any{
		"id":           doc.ID,
		"userId":       doc.UserID,
		"groupId":      doc.GroupID,
		"title":        doc.Title,
		"bodyBlobName": doc.BodyBlobName,
		"releasedAt":   doc.ReleasedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":    doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"user": map[string]any{
			"id":     doc.User.ID,
			"uid":    doc.User.UID,
			"handle": doc.User.Handle,
			"name":   doc.User.Name,
		},
		"group":  group,
		"topics": topics,
		"body":   doc.Body,
	}
}

func hitFromPayload(id string, score float32, meta map[string]any) Hit {
	str := func(key string) string {
		s, _ := meta[key].(string)
		return s
	}
	hit := Hit{
		NoteID:  id,
		Title:   str("title"),
		Snippet: snippet(str("body")),
		UserID:  str("userId"),
		GroupID: str("groupId"),
		Score:   score,
	}
	if t, err := time.Parse(time.RFC3339Nano, str("releasedAt")); err == nil {
		hit.ReleasedAt = t
	}
	return hit
}

func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
