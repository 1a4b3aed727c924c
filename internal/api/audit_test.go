package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/emubot-core/internal/audit"
	"github.com/nerrad567/emubot-core/internal/auth"
)

func adminToken(t *testing.T, subject string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, subject, auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return tok
}

func listAudit(t *testing.T, srv *Server, query, token string) audit.ListResult {
	t.Helper()
	rec := do(t, srv, http.MethodGet, "/api/v1/audit"+query, "", token)
	require.Equal(t, http.StatusOK, rec.Code, "GET /audit%s: %s", query, rec.Body.String())
	var res audit.ListResult
	decodeBody(t, rec, &res)
	return res
}

func TestAudit_RecordsCatalogAndRunActions(t *testing.T) {
	srv := testServer(t, testSecret)
	tok := adminToken(t, "alice")

	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/scripts", helloScript, tok).Code)
	botID := createBot(t, srv, "hello", tok)

	rec := do(t, srv, http.MethodPost, "/api/v1/bots/"+botID+"/start", "", tok)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]string
	decodeBody(t, rec, &started)

	require.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/v1/scripts/hello", "", tok).Code)

	res := listAudit(t, srv, "", tok)
	require.Equal(t, 4, res.Total, "%+v", res.Entries)
	for _, e := range res.Entries {
		assert.Equal(t, "alice", e.Actor, e.Action)
		assert.Equal(t, audit.SourceAPI, e.Source, e.Action)
	}

	starts := listAudit(t, srv, "?action=start&entity_id="+botID, tok)
	require.Equal(t, 1, starts.Total)
	assert.Equal(t, started["run_id"], starts.Entries[0].Details["run_id"])
}

func TestAudit_FailedActionsNotRecorded(t *testing.T) {
	srv := testServer(t, testSecret)
	tok := adminToken(t, "bob")

	do(t, srv, http.MethodDelete, "/api/v1/scripts/missing", "", tok)
	do(t, srv, http.MethodPost, "/api/v1/scripts", `{"name":""}`, tok)

	res := listAudit(t, srv, "", tok)
	assert.Zero(t, res.Total, "%+v", res.Entries)
}

func TestAudit_Paging(t *testing.T) {
	srv := testServer(t, testSecret)
	tok := adminToken(t, "carol")

	for _, name := range []string{"a", "b", "c"} {
		body := `{"name":"` + name + `","instances":[{"instance_name":"emu-1"}],"scripts":[{"script_name":"hello"}]}`
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/bots", body, tok).Code, name)
	}

	res := listAudit(t, srv, "?limit=2&offset=1", tok)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Entries, 2)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 1, res.Offset)
}

func TestAudit_BadQuery(t *testing.T) {
	srv := testServer(t, testSecret)
	tok := adminToken(t, "dave")

	for _, q := range []string{"?limit=abc", "?offset=-1"} {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/v1/audit"+q, "", tok).Code, q)
	}
}

func TestAudit_Disabled(t *testing.T) {
	srv := testServer(t, "")
	srv.audit = nil

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/v1/audit", "", "").Code)
	// Mutations still succeed without a trail.
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/scripts", helloScript, "").Code)
}
