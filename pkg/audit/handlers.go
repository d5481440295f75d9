package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/httputil"
)

// Searcher queries stored audit events
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
}

// Handlers serves the audit trail of the caller's organization
type Handlers struct {
	store Searcher
}

// NewHandlers creates audit handlers
func NewHandlers(store Searcher) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit routes. mw wraps each handler, outermost
// first; the server passes its permission guard here.
func (h *Handlers) RegisterRoutes(router *mux.Router, mw ...mux.MiddlewareFunc) {
	var handler http.Handler = http.HandlerFunc(h.listEvents)
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	router.Handle("/audit/events", handler).Methods(http.MethodGet)
}

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SearchFilter{
		OrganizationID: contextkeys.GetOrgID(r.Context()),
		ResourceType:   ResourceType(q.Get("resource_type")),
		ResourceID:     q.Get("resource_id"),
	}
	for _, t := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, EventType(t))
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteServiceError(w, r, apperrors.NewValidation("limit", "must be an integer"))
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteServiceError(w, r, apperrors.NewValidation("since", "must be an RFC3339 timestamp"))
			return
		}
		filter.Since = &since
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
