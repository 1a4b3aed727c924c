package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/emubot-core/internal/audit"
)

// record appends an API-sourced entry to the audit trail, attributing it to
// the token subject when auth is enabled.
func (s *Server) record(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	actor := ""
	if claims := claimsFromContext(r.Context()); claims != nil {
		actor = claims.Subject
	}
	s.audit.Record(r.Context(), audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Source:     audit.SourceAPI,
		Details:    details,
	})
}

// handleListAudit returns a page of audit entries, most recent first.
//
// Query parameters: action, entity_type, entity_id, actor, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Actor:      q.Get("actor"),
	}
	for _, v := range []string{filter.Action, filter.EntityType, filter.EntityID, filter.Actor} {
		if len(v) > maxQueryParamLen {
			writeBadRequest(w, "query parameter too long")
			return
		}
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, "invalid "+name)
		return 0, false
	}
	return n, true
}
