package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestValidateTags(t *testing.T) {
	tooMany := make(map[string]string)
	for i := 0; i < MaxTags+1; i++ {
		tooMany[fmt.Sprintf("k%d", i)] = "v"
	}

	tests := []struct {
		name    string
		tags    map[string]string
		wantErr bool
	}{
		{
			name: "typical ownership tags",
			tags: map[string]string{"userId": "u-1", "groupId": "n/a", "externalId": "abc:def=1"},
		},
		{
			name: "nil tags",
			tags: nil,
		},
		{
			name: "empty value allowed",
			tags: map[string]string{"groupId": ""},
		},
		{
			name: "value with allowed punctuation",
			tags: map[string]string{"path": "a/b c+d-e.f:g=h_i"},
		},
		{
			name:    "too many tags",
			tags:    tooMany,
			wantErr: true,
		},
		{
			name:    "empty key",
			tags:    map[string]string{"": "v"},
			wantErr: true,
		},
		{
			name:    "key too long",
			tags:    map[string]string{strings.Repeat("k", MaxTagKeyLen+1): "v"},
			wantErr: true,
		},
		{
			name:    "value too long",
			tags:    map[string]string{"k": strings.Repeat("v", MaxTagValueLen+1)},
			wantErr: true,
		},
		{
			name:    "value with percent encoding",
			tags:    map[string]string{"userName": "J%C3%BCrgen"},
			wantErr: true,
		},
		{
			name:    "non-ascii value",
			tags:    map[string]string{"userName": "Jürgen"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTags(tt.tags)
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("ValidateTags() error = %v, want *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateTags() unexpected error: %v", err)
			}
		})
	}
}

func newOfflineWriter(t *testing.T) *Writer {
	t.Helper()
	// minio.New does not dial, so validation paths can be tested without a server.
	w, err := New(Config{
		Endpoint:     "127.0.0.1:1",
		AccessKey:    "test",
		SecretKey:    "test-secret",
		DraftsBucket: "drafts",
		NotesBucket:  "notes",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestWriter_Put_FailsFastOnInvalidInput(t *testing.T) {
	w := newOfflineWriter(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		namespace string
		key       string
		tags      map[string]string
		check     func(error) bool
	}{
		{
			name:      "unknown namespace",
			namespace: "attachments",
			key:       "d1/x",
			check:     func(err error) bool { return errors.Is(err, ErrUnknownNamespace) },
		},
		{
			name:      "empty key",
			namespace: NamespaceDrafts,
			key:       "",
			check: func(err error) bool {
				var vErr *ValidationError
				return errors.As(err, &vErr)
			},
		},
		{
			name:      "invalid tag",
			namespace: NamespaceNotes,
			key:       "n1/x",
			tags:      map[string]string{"bad": "a*b"},
			check: func(err error) bool {
				var vErr *ValidationError
				return errors.As(err, &vErr) && vErr.Key == "bad"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Put(ctx, tt.namespace, tt.key, "application/json", []byte(`{"type":"doc"}`), nil, tt.tags)
			if err == nil {
				t.Fatal("Put() expected error, got nil")
			}
			if !tt.check(err) {
				t.Errorf("Put() error = %v, did not match expectation", err)
			}
		})
	}
}

func TestWriter_Delete_UnknownNamespace(t *testing.T) {
	w := newOfflineWriter(t)
	if err := w.Delete(context.Background(), "elsewhere", "k"); !errors.Is(err, ErrUnknownNamespace) {
		t.Errorf("Delete() error = %v, want ErrUnknownNamespace", err)
	}
}

type s3Object struct {
	body   []byte
	header http.Header
}

// fakeS3 answers the handful of S3 calls the Writer makes, path-style.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]s3Object
	deletes []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	name := bucket + "/" + key

	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[name] = s3Object{body: body, header: r.Header.Clone()}
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead, r.Method == http.MethodGet:
		obj, ok := f.objects[name]
		if !ok {
			if r.Method == http.MethodGet {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		w.Header().Set("Content-Type", obj.header.Get("Content-Type"))
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.body)))
		w.Header().Set("Last-Modified", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.body)
		}
	case r.Method == http.MethodDelete:
		// S3 answers 204 whether or not the key existed.
		delete(f.objects, name)
		f.deletes = append(f.deletes, name)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) object(name string) (s3Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[name]
	return obj, ok
}

func (f *fakeS3) hasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[name]
}

func (f *fakeS3) stats() (objects int, deletes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects), append([]string(nil), f.deletes...)
}

func newFakeS3Writer(t *testing.T) (*Writer, *fakeS3) {
	t.Helper()

	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string]s3Object{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	// Anonymous credentials keep request bodies unsigned; a fixed region
	// skips the bucket location lookup.
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("", "", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("minio.New() error = %v", err)
	}
	return NewWithClient(client, "drafts-bucket", "notes-bucket"), fake
}

func TestWriter_EnsureBuckets(t *testing.T) {
	w, fake := newFakeS3Writer(t)
	fake.mu.Lock()
	fake.buckets["drafts-bucket"] = true
	fake.mu.Unlock()

	if err := w.EnsureBuckets(context.Background()); err != nil {
		t.Fatalf("EnsureBuckets() error = %v", err)
	}
	if !fake.hasBucket("notes-bucket") {
		t.Error("notes bucket was not created")
	}
	if err := w.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestWriter_PutGetExistsDelete(t *testing.T) {
	w, fake := newFakeS3Writer(t)
	ctx := context.Background()

	payload := []byte(`{"type":"doc"}`)
	metadata := map[string]string{"userId": "u1", "userName": "Alice%20Doe"}
	tags := map[string]string{"userId": "u1", "groupId": "n/a"}

	if err := w.Put(ctx, NamespaceNotes, "n1/b1", "application/json", payload, metadata, tags); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	obj, ok := fake.object("notes-bucket/n1/b1")
	if !ok {
		t.Fatal("object not stored under the notes bucket")
	}
	if string(obj.body) != string(payload) {
		t.Errorf("stored body = %q, want %q", obj.body, payload)
	}
	if got := obj.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := obj.header.Get("X-Amz-Meta-UserId"); got != "u1" {
		t.Errorf("x-amz-meta-userId = %q, want u1", got)
	}
	if got := obj.header.Get("X-Amz-Meta-UserName"); got != "Alice%20Doe" {
		t.Errorf("x-amz-meta-userName = %q, want Alice%%20Doe", got)
	}
	gotTags, err := url.ParseQuery(obj.header.Get("X-Amz-Tagging"))
	if err != nil {
		t.Fatalf("parse X-Amz-Tagging: %v", err)
	}
	if gotTags.Get("userId") != "u1" || gotTags.Get("groupId") != "n/a" || len(gotTags) != 2 {
		t.Errorf("X-Amz-Tagging = %v", gotTags)
	}

	data, err := w.Get(ctx, NamespaceNotes, "n1/b1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("Get() = %q, want %q", data, payload)
	}

	exists, err := w.Exists(ctx, NamespaceNotes, "n1/b1")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v; want true", exists, err)
	}
	if exists, err := w.Exists(ctx, NamespaceDrafts, "n1/b1"); err != nil || exists {
		t.Errorf("Exists() in other namespace = %v, %v; want false", exists, err)
	}

	if err := w.Delete(ctx, NamespaceNotes, "n1/b1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, err = w.Exists(ctx, NamespaceNotes, "n1/b1")
	if err != nil || exists {
		t.Errorf("Exists() after delete = %v, %v; want false", exists, err)
	}
}

func TestWriter_DeleteMissingIsNoop(t *testing.T) {
	w, fake := newFakeS3Writer(t)

	if err := w.Delete(context.Background(), NamespaceDrafts, "d1/never-written"); err != nil {
		t.Errorf("Delete() of missing object error = %v, want nil", err)
	}
	if _, deletes := fake.stats(); len(deletes) != 1 || deletes[0] != "drafts-bucket/d1/never-written" {
		t.Errorf("deletes = %v", deletes)
	}
}

func TestWriter_Get_Missing(t *testing.T) {
	w, _ := newFakeS3Writer(t)

	if _, err := w.Get(context.Background(), NamespaceDrafts, "d1/missing"); err == nil {
		t.Error("Get() of missing object should fail")
	}
}

func TestWriter_Put_InvalidTagsNeverReachServer(t *testing.T) {
	w, fake := newFakeS3Writer(t)

	err := w.Put(context.Background(), NamespaceDrafts, "d1/b1", "application/json", []byte("{}"), nil, map[string]string{"bad": "a*b"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Put() error = %v, want *ValidationError", err)
	}
	if n, _ := fake.stats(); n != 0 {
		t.Errorf("objects = %d, want nothing written", n)
	}
}
