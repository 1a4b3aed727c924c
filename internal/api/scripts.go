package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/catalog"
	"github.com/nerrad567/emubot-core/internal/script"
)

// maxQueryParamLen limits query and path parameter length.
const maxQueryParamLen = 100

// handleListScripts returns all scripts.
//
// Query parameters:
//   - game: filter by game (case-insensitive)
func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	game := r.URL.Query().Get("game")
	if len(game) > maxQueryParamLen {
		writeBadRequest(w, "game exceeds maximum length")
		return
	}
	scripts := s.catalog.ListScripts(r.Context(), game)
	writeJSON(w, http.StatusOK, map[string]any{"scripts": scripts, "count": len(scripts)})
}

// handleGetScript returns a single script by name.
func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	name, ok := scriptNameParam(w, r)
	if !ok {
		return
	}

	rec, err := s.catalog.GetScript(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrScriptNotFound) {
			writeNotFound(w, "script not found")
			return
		}
		writeInternalError(w, "failed to get script")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateScript stores a new script document.
func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.decodeScriptBody(w, r)
	if !ok {
		return
	}

	rec, err := s.catalog.CreateScript(r.Context(), doc)
	if err != nil {
		s.writeScriptError(w, err, "failed to create script")
		return
	}
	s.record(r, audit.ActionCreate, audit.EntityScript, doc.Name, nil)
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateScript replaces a stored script. The document name must match
// the path.
func (s *Server) handleUpdateScript(w http.ResponseWriter, r *http.Request) {
	name, ok := scriptNameParam(w, r)
	if !ok {
		return
	}
	doc, ok := s.decodeScriptBody(w, r)
	if !ok {
		return
	}
	if doc.Name != name {
		writeBadRequest(w, "script name in body does not match path")
		return
	}

	rec, err := s.catalog.UpdateScript(r.Context(), doc)
	if err != nil {
		s.writeScriptError(w, err, "failed to update script")
		return
	}
	s.record(r, audit.ActionUpdate, audit.EntityScript, doc.Name, nil)
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteScript removes a script.
func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	name, ok := scriptNameParam(w, r)
	if !ok {
		return
	}

	if err := s.catalog.DeleteScript(r.Context(), name); err != nil {
		s.writeScriptError(w, err, "failed to delete script")
		return
	}
	s.record(r, audit.ActionDelete, audit.EntityScript, name, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateScript checks a document without storing it. Invalid
// documents are reported in the body with status 200.
func (s *Server) handleValidateScript(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	doc, err := decodeScript(r, data)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"name":  doc.Name,
		"steps": len(doc.Steps),
	})
}

// decodeScriptBody reads a JSON or YAML script document from the request,
// writing an error response when it cannot be used.
func (s *Server) decodeScriptBody(w http.ResponseWriter, r *http.Request) (*script.Script, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return nil, false
	}
	if len(data) == 0 {
		writeBadRequest(w, "empty request body")
		return nil, false
	}

	doc, err := decodeScript(r, data)
	if err != nil {
		writeValidationError(w, err.Error())
		return nil, false
	}
	return doc, true
}

// decodeScript picks the document format from the Content-Type header.
func decodeScript(r *http.Request, data []byte) (*script.Script, error) {
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		return script.DecodeYAML(data)
	}
	return script.Decode(data)
}

func (s *Server) writeScriptError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, catalog.ErrScriptNotFound):
		writeNotFound(w, "script not found")
	case errors.Is(err, catalog.ErrScriptExists):
		writeConflict(w, err.Error())
	case errors.Is(err, script.ErrInvalidScript), errors.Is(err, script.ErrUnknownStepType):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

func scriptNameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > script.MaxNameLength {
		writeBadRequest(w, fmt.Sprintf("invalid script name %q", name))
		return "", false
	}
	return name, true
}
