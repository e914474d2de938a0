package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// filterFromQuery reads type, severity, scope and owner. Severity is matched
// case-insensitively; an unknown severity is a 400.
func filterFromQuery(r *http.Request) (constraints.Filter, string, bool) {
	q := r.URL.Query()
	f := constraints.Filter{
		Type:  constraints.Type(q.Get("type")),
		Scope: q.Get("scope"),
		Owner: q.Get("owner"),
	}
	if raw := q.Get("severity"); raw != "" {
		sev, ok := constraints.ParseSeverity(raw)
		if !ok {
			return f, "unknown severity " + raw, false
		}
		f.Severity = sev
	}
	return f, "", true
}

func (s *Server) handleQueryConstraints(w http.ResponseWriter, r *http.Request) {
	f, msg, ok := filterFromQuery(r)
	if !ok {
		WriteValidation(w, "severity", msg)
		return
	}
	res := s.catalog.Query(r.Context(), f)
	if res.Constraints == nil {
		res.Constraints = []constraints.Constraint{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetConstraint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.catalog.GetByID(r.Context(), id)
	if errors.Is(err, constraints.ErrConstraintNotFound) {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "constraint "+id+" not found")
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRejectedConstraints(w http.ResponseWriter, r *http.Request) {
	rejected := s.catalog.Rejected(r.Context())
	if rejected == nil {
		rejected = []constraints.Rejected{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": rejected, "count": len(rejected)})
}
