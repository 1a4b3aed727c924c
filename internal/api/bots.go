package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/catalog"
	"github.com/nerrad567/emubot-core/internal/runner"
)

// handleListBots returns all bot profiles.
func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots := s.catalog.ListBots(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots, "count": len(bots)})
}

// handleGetBot returns a single bot by ID.
func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bot")
	if !ok {
		return
	}

	rec, err := s.catalog.GetBot(r.Context(), id)
	if err != nil {
		s.writeBotError(w, err, "failed to get bot")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateBot stores a new bot profile. A missing id is generated.
func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := decodeBotBody(w, r)
	if !ok {
		return
	}

	rec, err := s.catalog.CreateBot(r.Context(), bot)
	if err != nil {
		s.writeBotError(w, err, "failed to create bot")
		return
	}
	s.record(r, audit.ActionCreate, audit.EntityBot, rec.Bot.ID, map[string]any{"name": rec.Bot.Name})
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateBot replaces a stored bot profile. The path id wins over any
// id in the body.
func (s *Server) handleUpdateBot(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bot")
	if !ok {
		return
	}
	bot, ok := decodeBotBody(w, r)
	if !ok {
		return
	}
	bot.ID = id

	rec, err := s.catalog.UpdateBot(r.Context(), bot)
	if err != nil {
		s.writeBotError(w, err, "failed to update bot")
		return
	}
	s.record(r, audit.ActionUpdate, audit.EntityBot, id, map[string]any{"name": bot.Name})
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteBot removes a bot profile.
func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bot")
	if !ok {
		return
	}

	if err := s.catalog.DeleteBot(r.Context(), id); err != nil {
		s.writeBotError(w, err, "failed to delete bot")
		return
	}
	s.record(r, audit.ActionDelete, audit.EntityBot, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleStartBot schedules a run of the bot and returns its run id.
func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bot")
	if !ok {
		return
	}

	bot, err := s.catalog.Bot(r.Context(), id)
	if err != nil {
		s.writeBotError(w, err, "failed to load bot")
		return
	}

	runID := s.runner.Start(bot)
	s.logger.Info("run started via API", "run_id", runID, "bot_id", bot.ID, "bot", bot.Name)
	s.record(r, audit.ActionStart, audit.EntityBot, bot.ID, map[string]any{"run_id": runID})
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func decodeBotBody(w http.ResponseWriter, r *http.Request) (*runner.BotProfile, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return nil, false
	}
	if len(data) == 0 {
		writeBadRequest(w, "empty request body")
		return nil, false
	}

	bot, err := runner.DecodeBot(data)
	if err != nil {
		writeValidationError(w, err.Error())
		return nil, false
	}
	return bot, true
}

func (s *Server) writeBotError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, catalog.ErrBotNotFound):
		writeNotFound(w, "bot not found")
	case errors.Is(err, catalog.ErrBotExists):
		writeConflict(w, err.Error())
	case errors.Is(err, runner.ErrInvalidBot):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

func idParam(w http.ResponseWriter, r *http.Request, kind string) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid "+kind+" ID")
		return "", false
	}
	return id, true
}
