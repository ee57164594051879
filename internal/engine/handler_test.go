package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/payments-engine/internal/account"
	"github.com/congo-pay/payments-engine/internal/csvio"
	"github.com/congo-pay/payments-engine/internal/ledger"
	"github.com/congo-pay/payments-engine/internal/logging"
)

func newTestApp(t *testing.T, rowPolicy csvio.Policy) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	shared := NewShared(New(account.PolicyPermissive, nil, logger))
	h := NewHandler(shared, ledger.NewInMemory(), rowPolicy, csvio.DefaultScale, logger)

	app := fiber.New()
	app.Post("/transactions", h.Apply)
	app.Post("/transactions/batch", h.Batch)
	app.Get("/accounts", h.List)
	app.Get("/accounts/:client", h.Get)
	app.Get("/accounts/:client/audit", h.Audit)
	app.Post("/exports", h.Export)
	app.Get("/exports/:runId", h.ExportByID)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, contentType, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestHandlerApply(t *testing.T) {
	app := newTestApp(t, csvio.PolicySkip)

	status, body := do(t, app, http.MethodPost, "/transactions", fiber.MIMEApplicationJSON,
		`{"type":"deposit","client":7,"tx":1,"amount":"2.5"}`)
	require.Equal(t, http.StatusAccepted, status, body)

	var got snapshotResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, snapshotResponse{Client: 7, Available: "2.5000", Held: "0.0000", Total: "2.5000"}, got)

	// A rejected withdrawal still answers with the unchanged snapshot.
	status, body = do(t, app, http.MethodPost, "/transactions", fiber.MIMEApplicationJSON,
		`{"type":"withdrawal","client":7,"tx":2,"amount":"10"}`)
	require.Equal(t, http.StatusAccepted, status)
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "2.5000", got.Available)
}

func TestHandlerApplyRejectsInvalidBody(t *testing.T) {
	app := newTestApp(t, csvio.PolicySkip)

	cases := map[string]string{
		"malformed":       `{"type":`,
		"unknown kind":    `{"type":"refund","client":1,"tx":1,"amount":"1"}`,
		"missing amount":  `{"type":"deposit","client":1,"tx":1}`,
		"negative amount": `{"type":"deposit","client":1,"tx":1,"amount":"-1"}`,
	}
	for name, body := range cases {
		status, _ := do(t, app, http.MethodPost, "/transactions", fiber.MIMEApplicationJSON, body)
		assert.Equal(t, http.StatusBadRequest, status, name)
	}
}

func TestHandlerBatchAndList(t *testing.T) {
	app := newTestApp(t, csvio.PolicySkip)

	batch := "type, client, tx, amount\n" +
		"deposit, 1, 1, 1.0\n" +
		"deposit, 2, 2, 2.0\n" +
		"bogus, 2, 3, 1.0\n" +
		"withdrawal, 1, 4, 1.5\n"
	status, body := do(t, app, http.MethodPost, "/transactions/batch", "text/csv", batch)
	require.Equal(t, http.StatusOK, status, body)

	var res batchResponse
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, Stats{Applied: 2, Ignored: 1}, res.Stats)

	status, body = do(t, app, http.MethodGet, "/accounts?format=csv", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "client,available,held,total,locked\n1,1.0000,0.0000,1.0000,false\n2,2.0000,0.0000,2.0000,false\n", body)

	status, body = do(t, app, http.MethodGet, "/accounts", "", "")
	require.Equal(t, http.StatusOK, status)
	var list []snapshotResponse
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 2)
	assert.Equal(t, uint16(1), list[0].Client)
}

func TestHandlerBatchFailPolicy(t *testing.T) {
	app := newTestApp(t, csvio.PolicyFail)

	status, _ := do(t, app, http.MethodPost, "/transactions/batch", "text/csv",
		"type,client,tx,amount\ndeposit,1,1,1.0\nbogus,1,2,1.0\n")
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = do(t, app, http.MethodPost, "/transactions/batch", "text/csv", "type,client\ndeposit,1\n")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestHandlerRejectedBatchAppliesNothing(t *testing.T) {
	app := newTestApp(t, csvio.PolicyFail)
	bad := "type,client,tx,amount\ndeposit,1,1,1.0\nbogus,1,2,1.0\n"

	for i := 0; i < 2; i++ {
		status, _ := do(t, app, http.MethodPost, "/transactions/batch", "text/csv", bad)
		require.Equal(t, http.StatusUnprocessableEntity, status)
	}

	status, body := do(t, app, http.MethodGet, "/accounts?format=csv", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "client,available,held,total,locked\n", body)

	status, _ = do(t, app, http.MethodGet, "/accounts/1", "", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandlerBatchReportsPerBatchStats(t *testing.T) {
	app := newTestApp(t, csvio.PolicySkip)

	status, _ := do(t, app, http.MethodPost, "/transactions/batch", "text/csv",
		"type,client,tx,amount\ndeposit,1,1,5.0\nwithdrawal,1,2,9.0\n")
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodPost, "/transactions/batch", "text/csv",
		"type,client,tx,amount\ndeposit,2,3,1.0\n")
	require.Equal(t, http.StatusOK, status)

	var res batchResponse
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, Stats{Applied: 1, Ignored: 0}, res.Stats)
}

func TestHandlerGetAndAudit(t *testing.T) {
	app := newTestApp(t, csvio.PolicySkip)

	do(t, app, http.MethodPost, "/transactions", fiber.MIMEApplicationJSON, `{"type":"deposit","client":3,"tx":10,"amount":"4"}`)
	do(t, app, http.MethodPost, "/transactions", fiber.MIMEApplicationJSON, `{"type":"dispute","client":3,"tx":10}`)

	status, body := do(t, app, http.MethodGet, "/accounts/3", "", "")
	require.Equal(t, http.StatusOK, status)
	var snap snapshotResponse
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, "0.0000", snap.Available)
	assert.Equal(t, "4.0000", snap.Held)

	status, body = do(t, app, http.MethodGet, "/accounts/3/audit", "", "")
	require.Equal(t, http.StatusOK, status)
	var audit account.Audit
	require.NoError(t, json.Unmarshal([]byte(body), &audit))
	assert.Equal(t, []uint32{10}, audit.History)
	assert.Equal(t, []uint32{10}, audit.Disputed)

	status, _ = do(t, app, http.MethodGet, "/accounts/4", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, app, http.MethodGet, "/accounts/4/audit", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, app, http.MethodGet, "/accounts/70000", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandlerExports(t *testing.T) {
	app := newTestApp(t, csvio.PolicySkip)

	do(t, app, http.MethodPost, "/transactions", fiber.MIMEApplicationJSON, `{"type":"deposit","client":1,"tx":1,"amount":"1.23456"}`)

	status, body := do(t, app, http.MethodPost, "/exports", "", "")
	require.Equal(t, http.StatusCreated, status, body)
	var created exportResponse
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	require.NotEmpty(t, created.RunID)
	require.Len(t, created.Accounts, 1)
	assert.Equal(t, "1.2346", created.Accounts[0].Available)

	status, body = do(t, app, http.MethodGet, "/exports/"+created.RunID, "", "")
	require.Equal(t, http.StatusOK, status)
	var fetched exportResponse
	require.NoError(t, json.Unmarshal([]byte(body), &fetched))
	assert.Equal(t, created.RunID, fetched.RunID)
	assert.Equal(t, created.Accounts, fetched.Accounts)

	status, _ = do(t, app, http.MethodGet, "/exports/does-not-exist", "", "")
	assert.Equal(t, http.StatusNotFound, status)
}
