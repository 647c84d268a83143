package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbastidas/inboundscan/internal/db"
	"github.com/lbastidas/inboundscan/internal/service"
	"github.com/lbastidas/inboundscan/internal/skulist"
	"github.com/lbastidas/inboundscan/internal/web"
)

const testBatchSize = 5

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, database.Close()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coordinator := service.NewCoordinator(database, 2*time.Minute, logger)
	ledger := service.NewLedger(database, skulist.AllowAll(), logger)

	srv := httptest.NewServer(web.NewServer(coordinator, ledger, database, testBatchSize, logger))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body map[string]any) (int, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer func() { assert.NoError(t, resp.Body.Close()) }()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func getJSON(t *testing.T, srv *httptest.Server, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer func() { assert.NoError(t, resp.Body.Close()) }()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func claim(t *testing.T, srv *httptest.Server, outer, inner string, qty int, operator string) (int, map[string]any) {
	t.Helper()
	return postJSON(t, srv, "/api/claims", map[string]any{
		"outerBoxId":  outer,
		"innerBoxId":  inner,
		"expectedQty": qty,
		"operator":    operator,
	})
}

func sessionID(t *testing.T, body map[string]any) int64 {
	t.Helper()
	session, ok := body["session"].(map[string]any)
	require.True(t, ok, "response carries a session: %v", body)
	return int64(session["id"].(float64))
}

func TestFullScanFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)
	assert.Empty(t, body["items"])
	assert.EqualValues(t, testBatchSize, body["batchSize"],
		"claims advertise the batch length so every station scans in the same cycle")

	for _, serial := range []string{"S0001", "S0002", "S0003"} {
		status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
			"sku":          "a100",
			"serialNumber": serial,
			"operator":     "alice",
		})
		require.Equal(t, http.StatusOK, status, "insert %s: %v", serial, body)
	}

	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/complete", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["scanned"])
	assert.EqualValues(t, 3, body["expected"])

	session := body["session"].(map[string]any)
	assert.Equal(t, "CONFIRMED", session["status"])
}

func TestClaimConflictsAndResume(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "S0001", "operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	// Bob cannot steal the box inside the lease window; the holder is named.
	status, body = claim(t, srv, "OB1", "IB1", 3, "bob")
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "ownership", body["error"])
	detail := body["detail"].(map[string]any)
	assert.Equal(t, "alice", detail["lockedBy"])

	// Alice resumes and gets her scan history back.
	status, body = claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "S0001", item["serialNumber"])
}

func TestInsertConflicts(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 5, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "S0001", "operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	// Duplicate serial.
	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "s0001", "operator": "alice",
	})
	require.Equal(t, http.StatusConflict, status)
	detail := body["detail"].(map[string]any)
	assert.Equal(t, "duplicate-serial", detail["kind"])

	// SKU mismatch names both SKUs.
	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "B200", "serialNumber": "S0002", "operator": "alice",
	})
	require.Equal(t, http.StatusConflict, status)
	detail = body["detail"].(map[string]any)
	assert.Equal(t, "sku-mismatch", detail["kind"])
	assert.Equal(t, "A100", detail["lockedSku"])
	assert.Equal(t, "B200", detail["offeredSku"])

	// Wrong operator.
	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "S0003", "operator": "bob",
	})
	assert.Equal(t, http.StatusForbidden, status)

	// Unknown session.
	status, _ = postJSON(t, srv, "/api/sessions/9999/items", map[string]any{
		"sku": "A100", "serialNumber": "S0004", "operator": "alice",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCompleteQuantityMismatchResponse(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "S0001", "operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/complete", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusConflict, status)
	detail := body["detail"].(map[string]any)
	assert.Equal(t, "quantity-mismatch", detail["kind"])
	assert.EqualValues(t, 1, detail["scanned"])
	assert.EqualValues(t, 3, detail["expected"])
}

func TestBatchResetEndpoint(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 10, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	for _, serial := range []string{"S0001", "S0002", "S0003"} {
		status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
			"sku": "A100", "serialNumber": serial, "operator": "alice",
		})
		require.Equal(t, http.StatusOK, status)
	}

	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/batch/reset", id), map[string]any{
		"serials":  []string{"S0002", "S0003"},
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["deleted"])

	status, body = getJSON(t, srv, fmt.Sprintf("/api/sessions/%d", id))
	require.Equal(t, http.StatusOK, status)
	items := body["items"].([]any)
	assert.Len(t, items, 1)
}

func TestSessionResetAndRecreate(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "S0001", "operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/reset", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["deleted"])

	status, body = claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, id, sessionID(t, body), "reset forfeits the row; a new claim gets a fresh one")
}

func TestHeartbeatEndpoint(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/heartbeat", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/heartbeat", id), map[string]any{
		"operator": "bob",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestValidationAndListing(t *testing.T) {
	srv := newTestServer(t)

	// Missing fields are a 400 before any state change.
	status, body := claim(t, srv, "", "IB1", 3, "alice")
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["error"])

	status, _ = claim(t, srv, "OB1", "IB1", 0, "alice")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)

	status, body = getJSON(t, srv, "/api/sessions?status=IN_PROGRESS")
	require.Equal(t, http.StatusOK, status)
	sessions := body["sessions"].([]any)
	assert.Len(t, sessions, 1)

	status, _ = getJSON(t, srv, "/api/sessions/424242")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = getJSON(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
}

func TestActingOnAbandonedSessionIsConflict(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 3, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/abandon", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	// The session still exists but has moved on, so this is 409, not 403.
	status, body = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/reset", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "state", body["error"])
	detail := body["detail"].(map[string]any)
	assert.Equal(t, "ABANDONED", detail["status"])

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/complete", id), map[string]any{
		"operator": "alice",
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestAlreadyConfirmedClaimIsConflict(t *testing.T) {
	srv := newTestServer(t)

	status, body := claim(t, srv, "OB1", "IB1", 1, "alice")
	require.Equal(t, http.StatusOK, status)
	id := sessionID(t, body)

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/items", id), map[string]any{
		"sku": "A100", "serialNumber": "S0001", "operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = postJSON(t, srv, fmt.Sprintf("/api/sessions/%d/complete", id), map[string]any{
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = claim(t, srv, "OB1", "IB1", 1, "alice")
	require.Equal(t, http.StatusConflict, status)
	detail := body["detail"].(map[string]any)
	assert.Equal(t, "already-confirmed", detail["kind"])
}
