package storage

import "time"

// Group types control who may read notes posted into a group.
const (
	GroupTypeBlog    = "BLOG"
	GroupTypePrivate = "PRIVATE"
)

// User is the joined owner projection of a draft or note.
type User struct {
	ID     string `json:"id"`
	UID    string `json:"uid"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// Group is the joined group projection of a draft or note.
type Group struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// TopicRef is one ordered topic association of a draft or note.
type TopicRef struct {
	TopicID string `json:"topicId"`
	Handle  string `json:"handle"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
}

// Draft is an in-progress document owned by exactly one user.
type Draft struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	GroupID       string     `json:"groupId,omitempty"`       // "" when not group scoped
	RelatedNoteID string     `json:"relatedNoteId,omitempty"` // "" until the draft edits a published note
	Title         string     `json:"title"`
	BodyBlobName  string     `json:"bodyBlobName,omitempty"`
	Topics        []TopicRef `json:"topics"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Note is the published counterpart of a draft, hydrated with owner, group and topics.
type Note struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	GroupID      string     `json:"groupId,omitempty"`
	Title        string     `json:"title"`
	BodyBlobName string     `json:"bodyBlobName"`
	ReleasedAt   time.Time  `json:"releasedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	User         User       `json:"user"`
	Group        *Group     `json:"group,omitempty"`
	Topics       []TopicRef `json:"topics"`
}

// DraftPatch lists the draft fields to change. Nil pointers are left untouched;
// topics are fully replaced only when ReplaceTopics is set.
type DraftPatch struct {
	Title         *string
	GroupID       *string
	RelatedNoteID *string
	BodyBlobName  *string
	Topics        []string
	ReplaceTopics bool
}

// PublishParams describes the metadata half of a publish.
type PublishParams struct {
	DraftID string
	UserID  string
	// NoteID is the note to create, or the existing note to update when Republish is set.
	NoteID       string
	Republish    bool
	GroupID      string
	Title        string
	Topics       []string
	BodyBlobName string
	PublishedAt  time.Time
}
