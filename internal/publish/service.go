// Package publish sequences draft autosave, save and publish across the blob
// store, the metadata store and the search index, undoing blob writes when
// the metadata write fails.
package publish

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_service.go -package=mocks drafthub/internal/publish Service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"drafthub/internal/blobstore"
	"drafthub/internal/contextutil"
	"drafthub/internal/search"
	"drafthub/internal/session"
	"drafthub/internal/storage"
	"drafthub/internal/textextract"
	"drafthub/internal/tokenizer"
)

const bodyContentType = "application/json"

// Defaults applied by NewService to zero-valued Deps fields.
const (
	DefaultEmbedTimeout        = 10 * time.Second
	DefaultCompensationTimeout = 30 * time.Second
	DefaultCommitTimeout       = 30 * time.Second
)

// Service is the draft lifecycle API.
type Service interface {
	// CreateDraft creates an empty draft owned by the signed-in user.
	CreateDraft(ctx context.Context) (*storage.Draft, error)
	// AutoSave applies a partial update to a draft.
	AutoSave(ctx context.Context, req AutoSaveRequest) (*storage.Draft, error)
	// SaveDraft replaces every field of a draft. The body is mandatory.
	SaveDraft(ctx context.Context, req DraftRequest) (*storage.Draft, error)
	// Publish promotes a draft to a note and deletes the draft. When the note
	// commits but indexing fails, the note is returned with an *IndexError.
	Publish(ctx context.Context, req DraftRequest) (*storage.Note, error)
}

// BlobStore stores document bodies.
type BlobStore interface {
	Put(ctx context.Context, namespace, key, contentType string, payload []byte, metadata, tags map[string]string) error
	Delete(ctx context.Context, namespace, key string) error
	Exists(ctx context.Context, namespace, key string) (bool, error)
}

// Embedder computes the embedding of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Truncator bounds a text to a token budget.
type Truncator interface {
	Truncate(text string, maxTokens int) (string, error)
}

// IDGenerator returns a new unique id for drafts, notes and blob names.
type IDGenerator func() string

// Deps holds the collaborators of the service. Embedder and Indexer are
// optional; without them notes are published with an empty embedding or
// left unindexed.
type Deps struct {
	Drafts    storage.DraftStore
	Notes     storage.NoteStore
	Groups    storage.GroupStore
	Blobs     BlobStore
	Truncator Truncator
	Embedder  Embedder
	Indexer   search.Indexer

	NewID IDGenerator
	Now   func() time.Time

	MaxEmbedTokens      int
	EmbedTimeout        time.Duration
	CompensationTimeout time.Duration
	CommitTimeout       time.Duration
}

type service struct {
	drafts    storage.DraftStore
	notes     storage.NoteStore
	groups    storage.GroupStore
	blobs     BlobStore
	truncator Truncator
	embedder  Embedder
	indexer   search.Indexer

	newID IDGenerator
	now   func() time.Time

	maxEmbedTokens      int
	embedTimeout        time.Duration
	compensationTimeout time.Duration
	commitTimeout       time.Duration
}

// NewService creates a new Service.
func NewService(deps Deps) Service {
	s := &service{
		drafts:              deps.Drafts,
		notes:               deps.Notes,
		groups:              deps.Groups,
		blobs:               deps.Blobs,
		truncator:           deps.Truncator,
		embedder:            deps.Embedder,
		indexer:             deps.Indexer,
		newID:               deps.NewID,
		now:                 deps.Now,
		maxEmbedTokens:      deps.MaxEmbedTokens,
		embedTimeout:        deps.EmbedTimeout,
		compensationTimeout: deps.CompensationTimeout,
		commitTimeout:       deps.CommitTimeout,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.maxEmbedTokens <= 0 {
		s.maxEmbedTokens = tokenizer.DefaultMaxTokens
	}
	if s.embedTimeout <= 0 {
		s.embedTimeout = DefaultEmbedTimeout
	}
	if s.compensationTimeout <= 0 {
		s.compensationTimeout = DefaultCompensationTimeout
	}
	if s.commitTimeout <= 0 {
		s.commitTimeout = DefaultCommitTimeout
	}
	return s
}

// CreateDraft creates an empty draft owned by the signed-in user.
func (s *service) CreateDraft(ctx context.Context) (*storage.Draft, error) {
	logger := contextutil.LoggerFromContext(ctx)

	user, ok := session.UserFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	draft, err := s.drafts.Create(ctx, s.newID(), user.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create draft", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: create draft: %w", ErrPersistence, err)
	}

	logger.InfoContext(ctx, "draft created", "draft_id", draft.ID)
	return draft, nil
}

// AutoSave applies the supplied fields to the draft. A new body is written
// under a fresh blob name and removed again if the draft row cannot be updated.
func (s *service) AutoSave(ctx context.Context, req AutoSaveRequest) (*storage.Draft, error) {
	groupID := ""
	if req.GroupID != nil {
		groupID = *req.GroupID
	}

	user, err := s.authorize(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if req.DraftID == "" {
		return nil, &ValidationError{Field: "draftId", Message: "cannot be empty"}
	}
	topics, err := normalizeTopics(req.Topics)
	if err != nil {
		return nil, err
	}
	if req.Body != nil {
		if _, err := textextract.Parse(req.Body); err != nil {
			return nil, &ValidationError{Field: "body", Message: err.Error()}
		}
	}

	patch := storage.DraftPatch{
		Title:         req.Title,
		GroupID:       req.GroupID,
		RelatedNoteID: req.RelatedNoteID,
	}
	if topics != nil {
		patch.Topics = topics
		patch.ReplaceTopics = true
	}

	return s.updateDraft(ctx, user, req.DraftID, groupID, req.Body, patch)
}

// SaveDraft overwrites the draft with req. Topics are always fully replaced;
// group and related note are only changed when given.
func (s *service) SaveDraft(ctx context.Context, req DraftRequest) (*storage.Draft, error) {
	user, err := s.authorize(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	_, topics, err := validateDraftRequest(req)
	if err != nil {
		return nil, err
	}

	// An omitted group or note link keeps the stored one.
	patch := storage.DraftPatch{
		Title:         &req.Title,
		Topics:        topics,
		ReplaceTopics: true,
	}
	if req.GroupID != "" {
		patch.GroupID = &req.GroupID
	}
	if req.RelatedNoteID != "" {
		patch.RelatedNoteID = &req.RelatedNoteID
	}

	return s.updateDraft(ctx, user, req.DraftID, req.GroupID, req.Body, patch)
}

func (s *service) updateDraft(ctx context.Context, user session.User, draftID, groupID string, body []byte, patch storage.DraftPatch) (*storage.Draft, error) {
	logger := contextutil.LoggerFromContext(ctx).With("draft_id", draftID)

	current, err := s.requireDraft(ctx, draftID, user.ID)
	if err != nil {
		return nil, err
	}
	if patch.GroupID == nil {
		groupID = current.GroupID
	}

	var steps []step
	if body != nil {
		blobName := draftID + "/" + s.newID()
		patch.BodyBlobName = &blobName
		steps = append(steps, s.putBodyStep(blobstore.NamespaceDrafts, blobName, body, user, groupID))
	}

	var draft *storage.Draft
	steps = append(steps, step{
		name: "update draft",
		action: func(ctx context.Context) error {
			d, err := s.drafts.Update(ctx, draftID, user.ID, patch)
			if err != nil {
				return err
			}
			draft = d
			return nil
		},
	})

	if err := newSaga(s.compensationTimeout, steps...).run(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to save draft", "error", err)
		return nil, fmt.Errorf("%w: save draft: %w", ErrPersistence, err)
	}

	logger.InfoContext(ctx, "draft saved", "body_blob", draft.BodyBlobName, "topics", len(draft.Topics))
	return draft, nil
}

// Publish promotes the draft to a note. The body goes to the notes namespace
// under the note's id, the metadata transaction creates or updates the note
// and deletes the draft, and the committed note is then indexed.
func (s *service) Publish(ctx context.Context, req DraftRequest) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx).With("draft_id", req.DraftID)

	user, err := s.authorize(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	doc, topics, err := validateDraftRequest(req)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	if _, err := s.requireDraft(ctx, req.DraftID, user.ID); err != nil {
		return nil, err
	}

	text := textextract.PlainText(doc)
	embedding := s.embed(ctx, text)

	noteID := req.RelatedNoteID
	republish := noteID != ""
	if !republish {
		noteID = s.newID()
	}
	blobName := noteID + "/" + s.newID()
	logger = logger.With("note_id", noteID)

	var note *storage.Note
	err = newSaga(s.compensationTimeout,
		s.putBodyStep(blobstore.NamespaceNotes, blobName, req.Body, user, req.GroupID),
		step{
			name: "publish note",
			action: func(ctx context.Context) error {
				// Once started, the transaction is not abandoned with the request.
				tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
				defer cancel()

				n, err := s.notes.Publish(tctx, storage.PublishParams{
					DraftID:      req.DraftID,
					UserID:       user.ID,
					NoteID:       noteID,
					Republish:    republish,
					GroupID:      req.GroupID,
					Title:        req.Title,
					Topics:       topics,
					BodyBlobName: blobName,
					PublishedAt:  s.now(),
				})
				if err != nil {
					return err
				}
				note = n
				return nil
			},
		},
	).run(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.WarnContext(ctx, "publish matched no rows", "republish", republish)
			return nil, ErrNotFound
		}
		logger.ErrorContext(ctx, "failed to publish", "error", err)
		return nil, fmt.Errorf("%w: publish: %w", ErrPersistence, err)
	}

	logger.InfoContext(ctx, "note published", "republish", republish, "body_blob", blobName, "embedding_dims", len(embedding))

	if s.indexer == nil {
		return note, nil
	}
	if err := s.indexer.Upsert(ctx, search.IndexNotes, note.ID, search.NewNoteDocument(*note, text, embedding)); err != nil {
		logger.ErrorContext(ctx, "failed to index note", "error", err)
		return note, &IndexError{NoteID: note.ID, Err: err}
	}
	return note, nil
}

// authorize returns the signed-in user and checks that they may post into
// groupID when one is given. A failed group check counts as not postable.
func (s *service) authorize(ctx context.Context, groupID string) (session.User, error) {
	user, ok := session.UserFromContext(ctx)
	if !ok {
		return session.User{}, ErrUnauthorized
	}
	if groupID == "" {
		return user, nil
	}

	postable, err := s.groups.CanPost(ctx, user.ID, groupID)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "group check failed", "group_id", groupID, "error", err)
		postable = false
	}
	if !postable {
		return session.User{}, ErrForbidden
	}
	return user, nil
}

// requireDraft checks that the draft exists and is owned by userID before
// anything is written. Missing and foreign drafts are both ErrNotFound.
func (s *service) requireDraft(ctx context.Context, draftID, userID string) (*storage.Draft, error) {
	draft, err := s.drafts.Get(ctx, draftID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load draft: %w", ErrPersistence, err)
	}
	return draft, nil
}

func (s *service) putBodyStep(namespace, key string, body []byte, user session.User, groupID string) step {
	metadata, tags := blobAttributes(user, groupID)
	return step{
		name: "put " + namespace + " body",
		action: func(ctx context.Context) error {
			return s.blobs.Put(ctx, namespace, key, bodyContentType, body, metadata, tags)
		},
		compensate: func(ctx context.Context) error {
			err := s.blobs.Delete(ctx, namespace, key)
			if err == nil {
				return nil
			}
			// A delete can fail after the object is already gone.
			if exists, statErr := s.blobs.Exists(ctx, namespace, key); statErr == nil && !exists {
				return nil
			}
			return fmt.Errorf("blob %s/%s left behind: %w", namespace, key, err)
		},
	}
}

// embed returns the embedding of text, or an empty vector when the text is
// blank or the embedding could not be produced in time.
func (s *service) embed(ctx context.Context, text string) []float32 {
	logger := contextutil.LoggerFromContext(ctx)

	if s.embedder == nil || text == "" {
		return []float32{}
	}

	bounded := text
	if s.truncator != nil {
		t, err := s.truncator.Truncate(text, s.maxEmbedTokens)
		if err != nil {
			logger.WarnContext(ctx, "embedding skipped", "error", fmt.Errorf("%w: truncate: %w", ErrDegradedEnrichment, err))
			return []float32{}
		}
		bounded = t
	}

	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	type result struct {
		vec []float32
		err error
	}
	done := make(chan result, 1)
	go func() {
		vec, err := s.embedder.Embed(ectx, bounded)
		done <- result{vec: vec, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ectx.Done():
		res.err = ectx.Err()
	}

	if res.err != nil {
		logger.WarnContext(ctx, "embedding failed", "error", fmt.Errorf("%w: %w", ErrDegradedEnrichment, res.err))
		return []float32{}
	}
	if len(res.vec) == 0 {
		logger.WarnContext(ctx, "embedding empty", "error", ErrDegradedEnrichment)
		return []float32{}
	}
	return res.vec
}

func validateDraftRequest(req DraftRequest) (*textextract.Node, []string, error) {
	if req.DraftID == "" {
		return nil, nil, &ValidationError{Field: "draftId", Message: "cannot be empty"}
	}
	if req.Body == nil {
		return nil, nil, &ValidationError{Field: "body", Message: "is required"}
	}
	doc, err := textextract.Parse(req.Body)
	if err != nil {
		return nil, nil, &ValidationError{Field: "body", Message: err.Error()}
	}
	topics, err := normalizeTopics(req.Topics)
	if err != nil {
		return nil, nil, err
	}
	if topics == nil {
		topics = []string{}
	}
	return doc, topics, nil
}

// blobAttributes builds the ownership metadata and index tags of a body blob.
// The display name is path-escaped because object metadata must be ASCII.
func blobAttributes(user session.User, groupID string) (map[string]string, map[string]string) {
	externalID := user.ExternalID
	if externalID == "" {
		externalID = "n/a"
	}
	name := user.DisplayName
	if name == "" {
		name = "n/a"
	}

	metadata := map[string]string{
		"userId":     user.ID,
		"groupId":    groupOrNA(groupID),
		"userName":   url.PathEscape(name),
		"externalId": externalID,
	}
	tags := map[string]string{
		"userId":     user.ID,
		"groupId":    groupOrNA(groupID),
		"externalId": externalID,
	}
	return metadata, tags
}
