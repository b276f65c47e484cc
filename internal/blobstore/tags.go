package blobstore

import (
	"fmt"
	"sort"
)

// Object tag constraints of the backing store.
const (
	MaxTags        = 10
	MaxTagKeyLen   = 128
	MaxTagValueLen = 256
)

// ValidationError reports an object tag or metadata entry the store would reject.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid object tag %q: %s", e.Key, e.Reason)
}

// ValidateTags checks tags against the store's limits so a put fails fast
// instead of being partially applied.
func ValidateTags(tags map[string]string) error {
	if len(tags) > MaxTags {
		return &ValidationError{Reason: fmt.Sprintf("%d tags exceeds limit of %d", len(tags), MaxTags)}
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := tags[k]
		if len(k) < 1 || len(k) > MaxTagKeyLen {
			return &ValidationError{Key: k, Reason: fmt.Sprintf("key length must be 1-%d", MaxTagKeyLen)}
		}
		if len(v) > MaxTagValueLen {
			return &ValidationError{Key: k, Reason: fmt.Sprintf("value length must be 0-%d", MaxTagValueLen)}
		}
		if !validTagText(k) {
			return &ValidationError{Key: k, Reason: "key contains unsupported characters"}
		}
		if !validTagText(v) {
			return &ValidationError{Key: k, Reason: "value contains unsupported characters"}
		}
	}
	return nil
}

// validTagText allows ASCII alphanumerics plus space + - . : = _ /
func validTagText(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == ' ', c == '+', c == '-', c == '.', c == ':', c == '=', c == '_', c == '/':
		default:
			return false
		}
	}
	return true
}
