package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"drafthub/internal/contextutil"
	"drafthub/internal/search"
	"drafthub/internal/session"
	"drafthub/internal/storage"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SearchHandler serves note search, hiding hits the viewer may not read.
type SearchHandler struct {
	searcher search.Searcher
	groups   storage.GroupStore
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searcher search.Searcher, groups storage.GroupStore) *SearchHandler {
	return &SearchHandler{searcher: searcher, groups: groups}
}

// SearchResponse is the result list of a search.
type SearchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
}

// ServeHTTP handles GET /api/search?q=&limit=.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "query cannot be empty", Field: "q"})
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = min(n, maxSearchLimit)
	}

	hits, err := h.searcher.Search(ctx, query, limit)
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(ctx, w, http.StatusBadGateway, "Search service error")
		return
	}

	viewer, _ := session.UserFromContext(ctx)
	visible := make([]search.Hit, 0, len(hits))
	// Cache per group; results cluster in few groups.
	allowed := map[string]bool{}
	for _, hit := range hits {
		ok, seen := allowed[hit.GroupID]
		if !seen {
			var err error
			ok, err = h.groups.CanView(ctx, viewer.ID, hit.GroupID)
			if err != nil {
				logger.WarnContext(ctx, "visibility check failed", "group_id", hit.GroupID, "error", err)
				ok = false
			}
			allowed[hit.GroupID] = ok
		}
		if ok {
			visible = append(visible, hit)
		}
	}

	logger.DebugContext(ctx, "search completed", "hits", len(hits), "visible", len(visible))
	writeJSON(ctx, w, http.StatusOK, SearchResponse{Query: query, Hits: visible})
}
