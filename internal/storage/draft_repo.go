package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_draft_store.go -package=mocks drafthub/internal/storage DraftStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found, or when a conditional
	// write scoped to an owner matched zero rows.
	ErrNotFound = errors.New("record not found")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DraftStore defines the interface for draft storage operations.
type DraftStore interface {
	// Create inserts an empty draft owned by userID.
	Create(ctx context.Context, id, userID string) (*Draft, error)
	// Get returns the draft scoped to its owner. Returns ErrNotFound if missing or not owned.
	Get(ctx context.Context, id, userID string) (*Draft, error)
	// Update applies patch to the draft scoped to (id, userID) atomically.
	// Returns ErrNotFound when zero rows match.
	Update(ctx context.Context, id, userID string, patch DraftPatch) (*Draft, error)
}

// DraftRepo provides methods for draft operations.
// It implements the DraftStore interface.
type DraftRepo struct {
	db *DB
}

// NewDraftRepo creates a new DraftRepo.
func NewDraftRepo(db *DB) *DraftRepo {
	return &DraftRepo{db: db}
}

// Create inserts an empty draft owned by userID.
func (r *DraftRepo) Create(ctx context.Context, id, userID string) (*Draft, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind("INSERT INTO drafts (id, user_id, title, created_at, updated_at) VALUES (?, ?, '', ?, ?)"),
		id, userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert draft: %w", err)
	}
	return r.Get(ctx, id, userID)
}

// Get returns the draft scoped to its owner.
func (r *DraftRepo) Get(ctx context.Context, id, userID string) (*Draft, error) {
	return r.get(ctx, r.db, id, userID)
}

// Update applies patch to the draft row matching (id, userID) and, when requested,
// replaces its topic associations, all within one transaction.
func (r *DraftRepo) Update(ctx context.Context, id, userID string, patch DraftPatch) (*Draft, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.GroupID != nil {
		sets = append(sets, "group_id = ?")
		args = append(args, nullString(*patch.GroupID))
	}
	if patch.RelatedNoteID != nil {
		sets = append(sets, "related_note_id = ?")
		args = append(args, nullString(*patch.RelatedNoteID))
	}
	if patch.BodyBlobName != nil {
		sets = append(sets, "body_blob_name = ?")
		args = append(args, nullString(*patch.BodyBlobName))
	}
	args = append(args, id, userID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		r.db.Rebind("UPDATE drafts SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?"),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	if patch.ReplaceTopics {
		if err := replaceTopics(ctx, tx, r.db, "draft_topics", "draft_id", id, patch.Topics); err != nil {
			return nil, err
		}
	}

	draft, err := r.get(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit draft update: %w", err)
	}
	return draft, nil
}

func (r *DraftRepo) get(ctx context.Context, q querier, id, userID string) (*Draft, error) {
	var draft Draft
	var groupID, relatedNoteID, bodyBlobName sql.NullString

	err := q.QueryRowContext(ctx,
		r.db.Rebind(`SELECT id, user_id, group_id, related_note_id, title, body_blob_name, created_at, updated_at
		 FROM drafts WHERE id = ? AND user_id = ?`),
		id, userID,
	).Scan(&draft.ID, &draft.UserID, &groupID, &relatedNoteID, &draft.Title, &bodyBlobName, &draft.CreatedAt, &draft.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query draft: %w", err)
	}
	draft.GroupID = groupID.String
	draft.RelatedNoteID = relatedNoteID.String
	draft.BodyBlobName = bodyBlobName.String

	draft.Topics, err = listTopics(ctx, q, r.db, "draft_topics", "draft_id", id)
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// listTopics returns the ordered topic associations of one owner.
func listTopics(ctx context.Context, q querier, db *DB, table, ownerColumn, ownerID string) ([]TopicRef, error) {
	rows, err := q.QueryContext(ctx,
		db.Rebind("SELECT a.topic_id, t.handle, t.name, a.position FROM "+table+" a JOIN topics t ON t.id = a.topic_id WHERE a."+ownerColumn+" = ? ORDER BY a.position"),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	topics := []TopicRef{}
	for rows.Next() {
		var t TopicRef
		if err := rows.Scan(&t.TopicID, &t.Handle, &t.Name, &t.Order); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return topics, nil
}
