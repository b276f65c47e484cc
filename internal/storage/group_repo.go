package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_group_store.go -package=mocks drafthub/internal/storage GroupStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GroupStore answers group authorization questions.
type GroupStore interface {
	// CanPost reports whether userID may post into groupID.
	CanPost(ctx context.Context, userID, groupID string) (bool, error)
	// CanView reports whether userID may read content scoped to groupID.
	CanView(ctx context.Context, userID, groupID string) (bool, error)
}

// GroupRepo implements GroupStore on the group membership tables.
type GroupRepo struct {
	db *DB
}

// NewGroupRepo creates a new GroupRepo.
func NewGroupRepo(db *DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CanPost reports whether userID is a member of groupID.
func (r *GroupRepo) CanPost(ctx context.Context, userID, groupID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?"),
		groupID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query membership: %w", err)
	}
	return true, nil
}

// CanView allows blog groups to everyone and private groups to members only.
func (r *GroupRepo) CanView(ctx context.Context, userID, groupID string) (bool, error) {
	if groupID == "" {
		return true, nil
	}
	var groupType string
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT type FROM user_groups WHERE id = ?"),
		groupID,
	).Scan(&groupType)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query group: %w", err)
	}
	if groupType == GroupTypeBlog {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}
	return r.CanPost(ctx, userID, groupID)
}
