/*
handlers_test.go - End-to-end tests for the HTTP API

Runs the full router over an in-memory SQLite database seeded with
storetest.DefaultFixture. A cookie jar carries the session between calls;
redirects are not followed so their targets can be asserted.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/consad/compras/api"
	"github.com/consad/compras/config"
	"github.com/consad/compras/requisition"
	"github.com/consad/compras/session"
	"github.com/consad/compras/store"
	"github.com/consad/compras/store/sqlstore"
	"github.com/consad/compras/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testEnv struct {
	server *httptest.Server
	client *http.Client
	db     *store.DB
}

func newHandler(t *testing.T, src store.Source) *api.Handler {
	t.Helper()

	s := sqlstore.New(src)
	sessions := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { sessions.Close() })

	return api.NewHandler(api.Services{
		Sessions: session.NewResolver(s, sessions, session.NewSigner("test-secret"), time.Hour),
		Catalog:  requisition.NewCatalog(s),
		Gate:     requisition.NewGate(s, nil),
		Engine:   requisition.NewEngine(s),
		Reader:   requisition.NewReader(s),
	}, api.CookieOptions{Name: "compras_session"})
}

func newServer(t *testing.T, h *api.Handler) (*httptest.Server, *http.Client) {
	t.Helper()

	srv := httptest.NewServer(api.NewRouter(h, []string{"http://localhost:8080"}))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, client
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := storetest.NewSQLite(t)
	storetest.Seed(t, db, storetest.DefaultFixture())

	srv, client := newServer(t, newHandler(t, db))
	return &testEnv{server: srv, client: client, db: db}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := e.client.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, token string) {
	t.Helper()
	resp := e.postForm(t, "/login", url.Values{"token": {token}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/solicitudes/capturar", resp.Header.Get("Location"))
}

func (e *testEnv) submit(t *testing.T, material, qty string, period int64) bool {
	t.Helper()
	resp := e.postForm(t, "/solicitudes/post", url.Values{
		"material": {material},
		"cantidad": {qty},
		"periodo":  {strconv.FormatInt(period, 10)},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeSuccess(t, resp)
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func decodeSuccess(t *testing.T, resp *http.Response) bool {
	t.Helper()
	var out api.SuccessResponse
	decode(t, resp, &out)
	return out.Success
}

func anaFilter(period int64) api.ListRequest {
	return api.ListRequest{
		ZoneID:       storetest.ZoneNorth,
		DepartmentID: storetest.DeptPurchasing,
		PeriodID:     period,
	}
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

func TestLogin_ValidTokenStartsSession(t *testing.T) {
	env := setupTestEnv(t)

	env.login(t, storetest.TokenAna)

	resp := env.get(t, "/materiales")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_UnknownTokenRedirectsHome(t *testing.T) {
	env := setupTestEnv(t)

	for _, token := range []string{"nope", "", strings.ToUpper(storetest.TokenAna)} {
		resp := env.postForm(t, "/login", url.Values{"token": {token}})
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))
	}

	// No session was created.
	resp := env.get(t, "/materiales")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLogin_TrailingSlashIsAccepted(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.postForm(t, "/login/", url.Values{"token": {storetest.TokenAna}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/solicitudes/capturar", resp.Header.Get("Location"))
}

func TestLogout_AlwaysEndsSession(t *testing.T) {
	env := setupTestEnv(t)

	// Logging out without a session is fine.
	resp := env.get(t, "/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	env.login(t, storetest.TokenAna)
	resp = env.get(t, "/logout/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = env.get(t, "/solicitudes/capturar")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

// =============================================================================
// AUTH GATES
// =============================================================================

func TestProtectedRoutes_RedirectWhenAnonymous(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{
		"/materiales", "/grupos", "/usuarios", "/zonas", "/departamentos",
		"/periodo", "/solicitudes/capturar", "/periodo/get",
	} {
		resp := env.get(t, path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get("Location"), path)
	}

	resp := env.postJSON(t, "/solicitudes/get", anaFilter(storetest.PeriodOpen))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestSubmit_AnonymousGetsSuccessFalse(t *testing.T) {
	env := setupTestEnv(t)

	assert.False(t, env.submit(t, storetest.MaterialPaper, "5", storetest.PeriodOpen))
	assert.Zero(t, storetest.CountRequisitions(t, env.db))
}

func TestPublicPages(t *testing.T) {
	env := setupTestEnv(t)

	for _, path := range []string{"/", "/home", "/home/abc", "/about/"} {
		resp := env.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp := env.get(t, "/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// REQUISITIONS
// =============================================================================

func TestSubmit_RoundTrip(t *testing.T) {
	// GIVEN: Ana is logged in and a period is open
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	// WHEN: She submits 5 units of paper
	require.True(t, env.submit(t, storetest.MaterialPaper, "5", storetest.PeriodOpen))

	// THEN: Listing her zone/department/period shows the row
	resp := env.postJSON(t, "/solicitudes/get", anaFilter(storetest.PeriodOpen))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out api.LinesResponse
	decode(t, resp, &out)
	assert.Equal(t, requisition.LineHeadings, out.Headings)
	require.Len(t, out.Data, 1)
	assert.Equal(t, []string{storetest.MaterialPaper, "1", "Papel bond carta", "5", "CAJA", "1,234.50"}, out.Data[0])
}

func TestSubmit_TwiceKeepsOneRowWithLastQuantity(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	require.True(t, env.submit(t, storetest.MaterialToner, "2", storetest.PeriodOpen))
	require.True(t, env.submit(t, storetest.MaterialToner, "9", storetest.PeriodOpen))

	assert.Equal(t, 1, storetest.CountRequisitions(t, env.db))

	var out api.LinesResponse
	decode(t, env.postJSON(t, "/solicitudes/get", anaFilter(storetest.PeriodOpen)), &out)
	require.Len(t, out.Data, 1)
	assert.Equal(t, "9", out.Data[0][3])
}

func TestSubmit_RejectedWithoutWriting(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	tests := []struct {
		name string
		form url.Values
	}{
		{"zero quantity", url.Values{"material": {storetest.MaterialPaper}, "cantidad": {"0"}, "periodo": {"1"}}},
		{"non-numeric quantity", url.Values{"material": {storetest.MaterialPaper}, "cantidad": {"muchos"}, "periodo": {"1"}}},
		{"missing quantity", url.Values{"material": {storetest.MaterialPaper}, "periodo": {"1"}}},
		{"missing material", url.Values{"cantidad": {"3"}, "periodo": {"1"}}},
		{"missing period", url.Values{"material": {storetest.MaterialPaper}, "cantidad": {"3"}}},
		{"inactive period", url.Values{"material": {storetest.MaterialPaper}, "cantidad": {"3"},
			"periodo": {strconv.FormatInt(storetest.PeriodInactive, 10)}}},
		{"closed period", url.Values{"material": {storetest.MaterialPaper}, "cantidad": {"3"},
			"periodo": {strconv.FormatInt(storetest.PeriodClosed, 10)}}},
		{"future period", url.Values{"material": {storetest.MaterialPaper}, "cantidad": {"3"},
			"periodo": {strconv.FormatInt(storetest.PeriodFuture, 10)}}},
		{"inactive material", url.Values{"material": {storetest.MaterialRetired}, "cantidad": {"3"},
			"periodo": {strconv.FormatInt(storetest.PeriodOpen, 10)}}},
		{"unknown material", url.Values{"material": {"MAT-404"}, "cantidad": {"3"},
			"periodo": {strconv.FormatInt(storetest.PeriodOpen, 10)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.postForm(t, "/solicitudes/post", tt.form)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.False(t, decodeSuccess(t, resp))
			assert.Zero(t, storetest.CountRequisitions(t, env.db))
		})
	}
}

func TestOversizedBodiesAreRejected(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)
	huge := strings.Repeat("x", 1<<20+1024)

	// GIVEN: a JSON body over the limit
	body := `{"id_material": "` + huge + `"}`
	resp, err := env.client.Post(env.server.URL+"/solicitudes/delete", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	// THEN: it is refused without reaching the store
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeSuccess(t, resp))

	// GIVEN: a form body over the limit
	resp = env.postForm(t, "/solicitudes/post", url.Values{
		"material":    {storetest.MaterialPaper},
		"cantidad":    {"3"},
		"periodo":     {strconv.FormatInt(storetest.PeriodOpen, 10)},
		"comentarios": {huge},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeSuccess(t, resp))
	assert.Zero(t, storetest.CountRequisitions(t, env.db))
}

func TestList_EmptyIsSuccessFalse(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	resp := env.postJSON(t, "/solicitudes/get", anaFilter(storetest.PeriodOpen))
	assert.False(t, decodeSuccess(t, resp))

	resp = env.postJSON(t, "/solicitudes/get", map[string]any{"id_zona": 1})
	assert.False(t, decodeSuccess(t, resp))
}

func TestDelete_UsesSessionOwner(t *testing.T) {
	// GIVEN: Ana and Luis both requested paper
	env := setupTestEnv(t)
	env.login(t, storetest.TokenLuis)
	require.True(t, env.submit(t, storetest.MaterialPaper, "1", storetest.PeriodOpen))
	env.get(t, "/logout")

	env.login(t, storetest.TokenAna)
	require.True(t, env.submit(t, storetest.MaterialPaper, "4", storetest.PeriodOpen))
	require.Equal(t, 2, storetest.CountRequisitions(t, env.db))

	// WHEN: Ana deletes paper
	resp := env.postJSON(t, "/solicitudes/delete", api.DeleteRequest{MaterialID: storetest.MaterialPaper})
	assert.True(t, decodeSuccess(t, resp))

	// THEN: Only Luis's row remains
	assert.Equal(t, 1, storetest.CountRequisitions(t, env.db))

	// Deleting again still succeeds.
	resp = env.postJSON(t, "/solicitudes/delete", api.DeleteRequest{MaterialID: storetest.MaterialPaper})
	assert.True(t, decodeSuccess(t, resp))
}

func TestDelete_MissingMaterialIsSuccessFalse(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	resp := env.postJSON(t, "/solicitudes/delete", map[string]any{})
	assert.False(t, decodeSuccess(t, resp))
}

// =============================================================================
// CATALOGS AND PERIODS
// =============================================================================

func TestCatalogs(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	tests := []struct {
		path string
		tipo string
		rows int
	}{
		{"/materiales", "Materiales", 3},
		{"/grupos/", "Grupos de Materiales", 1},
		{"/usuarios", "Usuarios", 2},
		{"/zonas", "Zonas", 2},
		{"/departamentos", "Departamentos", 2},
		{"/periodo", "Periodos de apertura", 4},
		{"/solicitudes/capturar", "Captura de solicitudes", 2},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := env.get(t, tt.path)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var out api.CatalogResponse
			decode(t, resp, &out)
			assert.Equal(t, tt.tipo, out.Tipo)
			assert.NotEmpty(t, out.Columns)
			assert.Len(t, out.Rows, tt.rows)
		})
	}
}

func TestCatalog_NoDataIsNullRows(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	_, err := env.db.Exec(context.Background(), "DELETE FROM materiales")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp := env.get(t, "/materiales")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"rows":null`)
	}
}

func TestPeriods(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	resp := env.get(t, "/periodo/get")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out api.PeriodsResponse
	decode(t, resp, &out)
	assert.Equal(t, []string{"Id", "Nombre", "Inicio", "Fin", "Activo", "Editable"}, out.Headings)
	require.Len(t, out.Data, 3, "inactive period is hidden")

	// Newest first: future, open, closed.
	assert.EqualValues(t, storetest.PeriodFuture, out.Data[0][0])
	assert.EqualValues(t, storetest.PeriodOpen, out.Data[1][0])
	assert.Equal(t, true, out.Data[1][5], "open period is editable")
	_, err := time.Parse(time.RFC3339, out.Data[1][2].(string))
	assert.NoError(t, err, "dates are ISO-8601")
}

func TestPeriods_EditableFilter(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t, storetest.TokenAna)

	var out api.PeriodsResponse
	decode(t, env.postJSON(t, "/periodo/get", map[string]any{"editable": false}), &out)
	assert.Len(t, out.Data, 2, "future and closed periods are not running")

	resp := env.postJSON(t, "/periodo/get", map[string]any{"editable": true})
	assert.False(t, decodeSuccess(t, resp))
}

// =============================================================================
// BACKEND FAILURES
// =============================================================================

func TestUnavailableBackend_IsReportedNotEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0o600))

	conn := store.NewConnector(config.SQLite{Path: path})
	t.Cleanup(func() { conn.Close() })

	srv, client := newServer(t, newHandler(t, conn))

	resp, err := client.PostForm(srv.URL+"/login", url.Values{"token": {storetest.TokenAna}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
