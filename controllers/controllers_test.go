package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp-fleet-manager/controllers"
	"wp-fleet-manager/models"
	"wp-fleet-manager/remote"
	"wp-fleet-manager/server"
	"wp-fleet-manager/services"
	"wp-fleet-manager/store"
)

const siteKey = "site-key-123"

// wpSite serves the companion plugin's secure namespace only.
type wpSite struct {
	mu     sync.Mutex
	calls  []string
	routes map[string]any
}

func newWPSite() *wpSite {
	return &wpSite{routes: map[string]any{
		"GET /status": map[string]any{
			"success":   true,
			"site_info": map[string]any{"wordpress_version": "6.5.2", "php_version": "8.2.10", "plugins_count": 5, "themes_count": 2},
		},
		"GET /updates": map[string]any{
			"success": true,
			"updates": map[string]any{
				"plugins": []any{map[string]any{"plugin": "contact-form-7/wp-contact-form-7.php", "current_version": "5.8", "new_version": "5.9"}},
				"themes":  []any{},
			},
		},
		"POST /maintenance":   map[string]any{"success": true},
		"GET /maintenance":    map[string]any{"success": true, "enabled": false},
		"POST /update-plugin": map[string]any{"success": true, "message": "Plugin updated", "new_version": "5.9"},
	}}
}

func (s *wpSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/wp-json/wrms/v1")
	s.mu.Lock()
	s.calls = append(s.calls, route)
	body, ok := s.routes[route]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !strings.HasPrefix(r.URL.Path, "/wp-json/wrms/v1/") || !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"rest_no_route","message":"No route"}`)
		return
	}
	if r.Header.Get("X-WRMS-API-Key") != siteKey {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"invalid_api_key","message":"Invalid API key"}`)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (s *wpSite) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type env struct {
	t      *testing.T
	store  *store.Store
	h      *controllers.Handler
	router *gin.Engine
	token  string
	userID int64
	client *models.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	clients := services.NewClientFactory(remote.Options{Timeout: 2 * time.Second, UpdateTimeout: 2 * time.Second})
	h := &controllers.Handler{
		Store:   st,
		Clients: clients,
		Sync:    services.NewSyncService(st, clients, 2),
		Orchestrator: services.NewUpdateOrchestrator(services.OrchestratorOptions{
			VerifyAttempts: 2,
			VerifyInterval: 10 * time.Millisecond,
		}),
		Locks:       services.NewSiteLocks(),
		Provisioner: services.NewProvisioner(services.ProvisionOptions{}),
		JWTSecret:   []byte("test-secret-0123456789"),
		TokenTTL:    time.Hour,
	}
	e := &env{t: t, store: st, h: h, router: server.NewRouter(h, []string{"http://localhost:3000"})}

	u, err := st.CreateUser(context.Background(), "admin@agency.test", "s3cret-pass")
	require.NoError(t, err)
	e.userID = u.ID

	rec := e.do(http.MethodPost, "/api/login", map[string]string{"email": "admin@agency.test", "password": "s3cret-pass"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	e.token = login.Token

	e.client = &models.Client{UserID: u.ID, Name: "Acme"}
	require.NoError(t, st.CreateClient(context.Background(), e.client))
	return e
}

func (e *env) do(method, path string, body any, auth bool) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) addWebsite(url, key string) *models.Website {
	e.t.Helper()
	w := &models.Website{ClientID: e.client.ID, Name: "Acme blog", URL: url, APIKey: key}
	require.NoError(e.t, e.store.CreateWebsite(context.Background(), e.userID, w))
	return w
}

func (e *env) reload(id int64) *models.Website {
	e.t.Helper()
	w, err := e.store.GetWebsite(context.Background(), e.userID, id)
	require.NoError(e.t, err)
	return w
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func startSite(t *testing.T, site http.Handler) string {
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLogin_RejectsBadPassword(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/api/login", map[string]string{"email": "admin@agency.test", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodGet, "/api/clients", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/clients", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme")
}

func TestCreateWebsite_HidesAPIKey(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/websites", map[string]any{
		"clientId": e.client.ID, "name": "Shop", "url": "https://shop.acme.test/", "apiKey": "abc123",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "abc123")

	body := decode(t, rec)
	assert.Equal(t, "https://shop.acme.test", body["url"])
	assert.Equal(t, "unknown", body["connectionStatus"])

	rec = e.do(http.MethodPost, "/api/websites", map[string]any{
		"clientId": e.client.ID, "url": "ftp://shop.acme.test", "apiKey": "abc123",
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/websites", map[string]any{
		"clientId": e.client.ID + 99, "url": "https://x.test", "apiKey": "abc123",
	}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWebsite_OtherUsersSiteIsNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	other, err := e.store.CreateUser(ctx, "other@agency.test", "pw")
	require.NoError(t, err)
	oc := &models.Client{UserID: other.ID, Name: "Other"}
	require.NoError(t, e.store.CreateClient(ctx, oc))
	w := &models.Website{ClientID: oc.ID, Name: "Theirs", URL: "https://theirs.test", APIKey: "k"}
	require.NoError(t, e.store.CreateWebsite(ctx, other.ID, w))

	rec := e.do(http.MethodGet, "/api/websites/"+itoa(w.ID), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatus_RecordsConnected(t *testing.T) {
	e := newEnv(t)
	w := e.addWebsite(startSite(t, newWPSite()), siteKey)

	rec := e.do(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/status", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "6.5.2", body["wordpress_version"])
	assert.Equal(t, "wrms/v1", body["namespace"])

	got := e.reload(w.ID)
	assert.Equal(t, models.ConnectionConnected, got.ConnectionStatus)
	assert.NotNil(t, got.LastCheckedAt)
}

func TestGetStatus_InvalidKey(t *testing.T) {
	e := newEnv(t)
	w := e.addWebsite(startSite(t, newWPSite()), "wrong-key")

	rec := e.do(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/status", nil, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "InvalidApiKey", body["kind"])
	assert.NotEmpty(t, body["remediation"])
	assert.Equal(t, models.ConnectionError, e.reload(w.ID).ConnectionStatus)
}

func TestGetStatus_MalformedStoredKey(t *testing.T) {
	e := newEnv(t)
	site := newWPSite()
	w := e.addWebsite(startSite(t, site), "bad key")

	rec := e.do(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/status", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "InvalidCredential", decode(t, rec)["kind"])
	assert.Empty(t, site.Calls())
	assert.Equal(t, models.ConnectionError, e.reload(w.ID).ConnectionStatus)
}

func TestValidateKey_PluginMissing(t *testing.T) {
	e := newEnv(t)
	url := startSite(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"rest_no_route","message":"No route"}`)
	}))
	w := e.addWebsite(url, siteKey)

	rec := e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/validate", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "plugin_missing", body["status"])
	assert.Equal(t, "error", body["connectionStatus"])
	assert.Equal(t, remote.KindPluginNotInstalled.Remediation(), body["remediation"])
}

func TestSyncWebsite_StoresScan(t *testing.T) {
	e := newEnv(t)
	w := e.addWebsite(startSite(t, newWPSite()), siteKey)

	rec := e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/sync", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/scans", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var scans []models.Scan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scans))
	require.Len(t, scans, 1)
	assert.Equal(t, "6.5.2", scans[0].WordPressVersion)
	assert.Equal(t, 1, scans[0].PluginUpdates)
}

func TestSyncAll_ReportsEverySite(t *testing.T) {
	e := newEnv(t)
	good := e.addWebsite(startSite(t, newWPSite()), siteKey)
	bad := e.addWebsite(startSite(t, newWPSite()), "wrong-key")

	rec := e.do(http.MethodPost, "/api/websites/sync", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []services.SiteOutcome `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	byID := map[int64]services.SiteOutcome{}
	for _, o := range body.Results {
		byID[o.WebsiteID] = o
	}
	assert.Equal(t, models.ConnectionConnected, byID[good.ID].ConnectionStatus)
	assert.Equal(t, models.ConnectionError, byID[bad.ID].ConnectionStatus)
	assert.Equal(t, "InvalidApiKey", byID[bad.ID].Kind)
}

func TestRunUpdates_BracketsAndLogs(t *testing.T) {
	e := newEnv(t)
	site := newWPSite()
	w := e.addWebsite(startSite(t, site), siteKey)

	rec := e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/updates", models.UpdateRequest{Plugins: []string{"contact-form-7"}}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.UpdateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.MaintenanceMode)
	require.Len(t, result.Plugins, 1)
	assert.Equal(t, "contact-form-7", result.Plugins[0].Plugin)
	assert.Equal(t, []string{"POST /maintenance", "POST /update-plugin", "POST /maintenance"}, site.Calls())

	rec = e.do(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/update-logs", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []models.UpdateLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Contains(t, string(logs[0].Result), "contact-form-7")
}

func TestRunUpdates_SurvivesClientDisconnect(t *testing.T) {
	e := newEnv(t)
	site := newWPSite()
	reqCtx, disconnect := context.WithCancel(context.Background())
	defer disconnect()
	var once sync.Once
	url := startSite(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/update-plugin") {
			once.Do(disconnect)
		}
		site.ServeHTTP(w, r)
	}))
	w := e.addWebsite(url, siteKey)

	raw, err := json.Marshal(models.UpdateRequest{Plugins: []string{"a", "b", "c"}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/updates", bytes.NewReader(raw)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.UpdateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Empty(t, result.ErrorKind)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{
		"POST /maintenance",
		"POST /update-plugin", "POST /update-plugin", "POST /update-plugin",
		"POST /maintenance",
	}, site.Calls())

	assert.Equal(t, models.ConnectionConnected, e.reload(w.ID).ConnectionStatus)
	logs, err := e.store.ListUpdateLogs(context.Background(), w.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}

func TestGetStatus_RecordsAfterClientDisconnect(t *testing.T) {
	e := newEnv(t)
	site := newWPSite()
	reqCtx, disconnect := context.WithCancel(context.Background())
	defer disconnect()
	url := startSite(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		disconnect()
		site.ServeHTTP(w, r)
	}))
	w := e.addWebsite(url, siteKey)

	req := httptest.NewRequest(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/status", nil).WithContext(reqCtx)
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := e.reload(w.ID)
	assert.Equal(t, models.ConnectionConnected, got.ConnectionStatus)
	assert.NotNil(t, got.LastCheckedAt)
}

func TestRunUpdates_ConflictWhileRunning(t *testing.T) {
	e := newEnv(t)
	site := newWPSite()
	w := e.addWebsite(startSite(t, site), siteKey)

	release, ok := e.h.Locks.TryLock(w.ID)
	require.True(t, ok)
	defer release()

	rec := e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/updates", models.UpdateRequest{WordPress: true}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, site.Calls())
}

func TestMaintenance(t *testing.T) {
	e := newEnv(t)
	w := e.addWebsite(startSite(t, newWPSite()), siteKey)

	rec := e.do(http.MethodGet, "/api/websites/"+itoa(w.ID)+"/maintenance", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["enabled"])

	rec = e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/maintenance", map[string]any{}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/maintenance", map[string]any{"enabled": true}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["enabled"])
}

func TestProvision_RequiresSSHDetails(t *testing.T) {
	e := newEnv(t)
	w := e.addWebsite("https://blog.acme.test", siteKey)

	rec := e.do(http.MethodPost, "/api/websites/"+itoa(w.ID)+"/provision", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteClient_CascadesAndLogsActivity(t *testing.T) {
	e := newEnv(t)
	w := e.addWebsite("https://blog.acme.test", siteKey)

	rec := e.do(http.MethodDelete, "/api/clients/"+itoa(e.client.ID), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/api/websites/"+itoa(w.ID), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodGet, "/api/activities", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var acts []models.Activity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acts))
	var messages []string
	for _, a := range acts {
		messages = append(messages, a.Message)
	}
	assert.Contains(t, messages, "Client "+itoa(e.client.ID)+" deleted with its websites.")
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
