package publish

import (
	"encoding/json"
	"strings"
)

// AutoSaveRequest is a partial draft update. Nil fields are left unchanged;
// a nil Topics leaves the topic list untouched while an empty one clears it.
type AutoSaveRequest struct {
	DraftID       string
	GroupID       *string
	RelatedNoteID *string
	Title         *string
	Topics        []string
	Body          json.RawMessage
}

// DraftRequest is the full draft state sent by SaveDraft and Publish.
type DraftRequest struct {
	DraftID       string
	GroupID       string // "" for no group
	RelatedNoteID string // "" to publish a new note
	Title         string
	Topics        []string
	Body          json.RawMessage
}

// normalizeTopics drops duplicate topic ids, keeping the first occurrence so
// positions follow the caller's order. A nil input stays nil.
func normalizeTopics(topics []string) ([]string, error) {
	if topics == nil {
		return nil, nil
	}

	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, &ValidationError{Field: "topics", Message: "topic id cannot be empty"}
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func groupOrNA(groupID string) string {
	if groupID == "" {
		return "n/a"
	}
	return groupID
}
