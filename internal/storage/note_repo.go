package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks drafthub/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NoteStore defines the interface for note storage operations.
type NoteStore interface {
	// Get returns the hydrated note. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*Note, error)
	// Publish creates or updates the note, replaces its topics and deletes the
	// source draft in a single transaction. Returns ErrNotFound when any of the
	// owner-scoped writes matched zero rows; nothing is committed in that case.
	Publish(ctx context.Context, params PublishParams) (*Note, error)
}

// NoteRepo provides methods for note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Get returns the hydrated note.
func (r *NoteRepo) Get(ctx context.Context, id string) (*Note, error) {
	return r.get(ctx, r.db, id)
}

// Publish runs the metadata transaction of a publish.
func (r *NoteRepo) Publish(ctx context.Context, p PublishParams) (*Note, error) {
	publishedAt := p.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if p.Republish {
		// The note must belong to the caller and already be linked to this draft.
		res, err := tx.ExecContext(ctx,
			r.db.Rebind(`UPDATE notes SET title = ?, group_id = COALESCE(?, group_id), body_blob_name = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?
			 AND EXISTS (SELECT 1 FROM drafts d WHERE d.id = ? AND d.related_note_id = notes.id)`),
			p.Title, nullString(p.GroupID), p.BodyBlobName, publishedAt, p.NoteID, p.UserID, p.DraftID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update note: %w", err)
		}
		if err := requireRows(res); err != nil {
			return nil, err
		}
	} else {
		_, err := tx.ExecContext(ctx,
			r.db.Rebind(`INSERT INTO notes (id, user_id, group_id, title, body_blob_name, released_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			p.NoteID, p.UserID, nullString(p.GroupID), p.Title, p.BodyBlobName, publishedAt, publishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert note: %w", err)
		}
	}

	if err := replaceTopics(ctx, tx, r.db, "note_topics", "note_id", p.NoteID, p.Topics); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, r.db.Rebind("DELETE FROM drafts WHERE id = ? AND user_id = ?"), p.DraftID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete draft: %w", err)
	}
	if err := requireRows(res); err != nil {
		return nil, err
	}

	note, err := r.get(ctx, tx, p.NoteID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish: %w", err)
	}
	return note, nil
}

func (r *NoteRepo) get(ctx context.Context, q querier, id string) (*Note, error) {
	var note Note
	var groupID, gHandle, gName, gType sql.NullString

	err := q.QueryRowContext(ctx,
		r.db.Rebind(`SELECT n.id, n.user_id, n.group_id, n.title, n.body_blob_name, n.released_at, n.updated_at,
		 u.id, u.uid, u.handle, u.name, g.handle, g.name, g.type
		 FROM notes n
		 JOIN users u ON u.id = n.user_id
		 LEFT JOIN user_groups g ON g.id = n.group_id
		 WHERE n.id = ?`),
		id,
	).Scan(&note.ID, &note.UserID, &groupID, &note.Title, &note.BodyBlobName, &note.ReleasedAt, &note.UpdatedAt,
		&note.User.ID, &note.User.UID, &note.User.Handle, &note.User.Name, &gHandle, &gName, &gType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}

	if groupID.Valid {
		note.GroupID = groupID.String
		note.Group = &Group{ID: groupID.String, Handle: gHandle.String, Name: gName.String, Type: gType.String}
	}

	note.Topics, err = listTopics(ctx, q, r.db, "note_topics", "note_id", id)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// requireRows turns a zero-row conditional write into ErrNotFound.
func requireRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
