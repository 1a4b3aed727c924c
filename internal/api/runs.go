package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/runner"
)

// InstanceReservation is one row of GET /instances.
type InstanceReservation struct {
	Instance string `json:"instance_name"`
	RunID    string `json:"run_id"`
}

// handleListRuns returns every tracked instance status in run start order.
//
// Query parameters:
//   - state: filter by RUNNING, WAITING, STOPPED or ERROR
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	statuses := s.runner.List()

	if state := r.URL.Query().Get("state"); state != "" {
		if len(state) > maxQueryParamLen {
			writeBadRequest(w, "state exceeds maximum length")
			return
		}
		filtered := statuses[:0]
		for _, st := range statuses {
			if strings.EqualFold(string(st.State), state) {
				filtered = append(filtered, st)
			}
		}
		statuses = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": statuses, "count": len(statuses)})
}

// handleGetRun returns the per-instance statuses of one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "run")
	if !ok {
		return
	}

	statuses, err := s.runner.Get(id)
	if err != nil {
		if errors.Is(err, runner.ErrRunNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		writeInternalError(w, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":    id,
		"settled":   s.runner.Settled(id),
		"instances": statuses,
	})
}

// handleStopRun stops a run: the runner marks its instances STOPPED and the
// engine interrupts any script still executing.
func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "run")
	if !ok {
		return
	}

	if _, err := s.runner.Get(id); err != nil {
		if errors.Is(err, runner.ErrRunNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		writeInternalError(w, "failed to get run")
		return
	}

	s.runner.Stop(id)
	s.engine.Stop(id)
	s.logger.Info("run stopped via API", "run_id", id)
	s.record(r, audit.ActionStop, audit.EntityRun, id, nil)

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

// handleListInstances returns the current instance reservations.
func (s *Server) handleListInstances(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.instances.Snapshot()
	out := make([]InstanceReservation, 0, len(snapshot))
	for name, runID := range snapshot {
		out = append(out, InstanceReservation{Instance: name, RunID: runID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	writeJSON(w, http.StatusOK, map[string]any{"instances": out, "count": len(out)})
}
