package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"drafthub/internal/blobstore"
	"drafthub/internal/contextutil"
	"drafthub/internal/session"
	"drafthub/internal/storage"
	"drafthub/internal/textextract"
)

// BodyReader reads stored document bodies.
type BodyReader interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
}

// NoteHandler serves published notes as rendered HTML pages.
type NoteHandler struct {
	notes    storage.NoteStore
	groups   storage.GroupStore
	bodies   BodyReader
	parser   goldmark.Markdown
	template *template.Template
}

// notePageData holds template data for rendered note pages.
type notePageData struct {
	Title      string
	Author     string
	Group      string
	Topics     []string
	ReleasedAt string
	Content    template.HTML
}

// NewNoteHandler creates a new handler for viewing notes.
func NewNoteHandler(notes storage.NoteStore, groups storage.GroupStore, bodies BodyReader) *NoteHandler {
	tmpl := template.Must(template.New("note").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    :root {
      color-scheme: dark;
    }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.7;
      background: #050b18;
      color: #e4ecff;
    }
    header {
      margin-bottom: 2rem;
      border-bottom: 1px solid rgba(148, 163, 184, 0.2);
      padding-bottom: 1.5rem;
    }
    h1 {
      margin-top: 0;
      color: #fff;
      font-size: 2rem;
    }
    article {
      background: rgba(12, 19, 35, 0.85);
      border: 1px solid rgba(99, 102, 241, 0.2);
      border-radius: 16px;
      padding: 2rem;
      box-shadow: 0 15px 35px rgba(2, 6, 23, 0.8);
    }
    article h2, article h3, article h4 {
      color: #c7d2fe;
      margin-top: 1.5rem;
    }
    article p {
      color: #cbd5f5;
    }
    pre {
      background: #0f172a;
      padding: 1rem;
      overflow-x: auto;
      border-radius: 10px;
      border: 1px solid rgba(99, 102, 241, 0.2);
    }
    code {
      font-family: 'SFMono-Regular', Consolas, 'Liberation Mono', Menlo, monospace;
      background: rgba(99, 102, 241, 0.18);
      padding: 2px 5px;
      border-radius: 6px;
      color: #cbd5ff;
    }
    pre code {
      background: transparent;
      padding: 0;
    }
    blockquote {
      border-left: 4px solid rgba(96, 165, 250, 0.6);
      padding-left: 1rem;
      margin-left: 0;
      color: #93c5fd;
      background: rgba(59, 130, 246, 0.08);
      border-radius: 6px;
    }
    a {
      color: #60a5fa;
      text-decoration: none;
    }
    a:hover {
      text-decoration: underline;
    }
    .meta {
      color: #94a3b8;
      font-size: 0.95rem;
      margin-top: 0.5rem;
    }
    @media (max-width: 640px) {
      body {
        padding: 1rem;
      }
      article {
        padding: 1.25rem;
      }
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">{{.Author}}{{if .Group}} &middot; {{.Group}}{{end}} &middot; {{.ReleasedAt}}{{range .Topics}} &middot; #{{.}}{{end}}</p>
  </header>
  <article>{{.Content}}</article>
</body>
</html>`))

	return &NoteHandler{
		notes:  notes,
		groups: groups,
		bodies: bodies,
		// Raw HTML stays escaped: note bodies are user content.
		parser: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		template: tmpl,
	}
}

// ServeHTTP renders the requested note as HTML. Notes in private groups are
// only shown to members; everyone else gets a 404.
func (h *NoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	noteID := strings.TrimSpace(chi.URLParam(r, "noteID"))
	if noteID == "" {
		http.Error(w, "note id is required", http.StatusBadRequest)
		return
	}
	logger = logger.With("note_id", noteID)

	note, err := h.notes.Get(ctx, noteID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load note", "error", err)
		http.Error(w, "failed to load note", http.StatusInternalServerError)
		return
	}

	viewer, _ := session.UserFromContext(ctx)
	visible, err := h.groups.CanView(ctx, viewer.ID, note.GroupID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to check note visibility", "error", err)
		http.Error(w, "failed to load note", http.StatusInternalServerError)
		return
	}
	if !visible {
		logger.WarnContext(ctx, "note hidden from viewer", "group_id", note.GroupID)
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}

	raw, err := h.bodies.Get(ctx, blobstore.NamespaceNotes, note.BodyBlobName)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read note body", "blob", note.BodyBlobName, "error", err)
		http.Error(w, "failed to read note", http.StatusInternalServerError)
		return
	}

	htmlContent, err := h.render(raw)
	if err != nil {
		logger.ErrorContext(ctx, "failed to render note", "blob", note.BodyBlobName, "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, pageData(note, htmlContent)); err != nil {
		logger.ErrorContext(ctx, "failed to execute note template", "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}
}

// render turns a stored document body into HTML via markdown.
func (h *NoteHandler) render(raw []byte) (string, error) {
	doc, err := textextract.Parse(raw)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := h.parser.Convert([]byte(textextract.Markdown(doc)), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

func pageData(note *storage.Note, htmlContent string) notePageData {
	data := notePageData{
		Title:      note.Title,
		Author:     note.User.Name,
		ReleasedAt: note.ReleasedAt.Format(time.DateOnly),
		Content:    template.HTML(htmlContent),
	}
	if data.Title == "" {
		data.Title = "Untitled"
	}
	if note.Group != nil {
		data.Group = note.Group.Name
	}
	for _, t := range note.Topics {
		data.Topics = append(data.Topics, t.Handle)
	}
	return data
}
