package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"webmaster-monitor/internal/collect"
	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/hub"
	"webmaster-monitor/internal/model"
	"webmaster-monitor/internal/selfupdate"
	"webmaster-monitor/internal/status"
	"webmaster-monitor/internal/update"
)

type fakeAssembler struct {
	scopes []status.Scope
	err    error
}

func (f *fakeAssembler) Assemble(_ context.Context, scope status.Scope) (model.Envelope, error) {
	f.scopes = append(f.scopes, scope)
	if f.err != nil {
		return model.Envelope{}, f.err
	}
	env := model.Envelope{AgentVersion: "1.0.2", Timestamp: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	switch scope {
	case status.ServerOnly:
		env.Payload = model.ServerPayload{}
	case status.PlatformOnly:
		env.Payload = model.PlatformPayload{}
	default:
		env.Payload = model.CompositePayload{}
	}
	return env, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeApplier struct {
	kind   host.Kind
	id     string
	result model.UpdateResult
	err    *update.Error
}

func (f *fakeApplier) Apply(_ context.Context, kind host.Kind, id string) (model.UpdateResult, *update.Error) {
	f.kind, f.id = kind, id
	return f.result, f.err
}

type fakeChecker struct {
	info *selfupdate.RemoteVersionInfo
	set  *host.UpdateSet
	err  error
}

func (f *fakeChecker) Check(context.Context, bool) (*selfupdate.RemoteVersionInfo, error) {
	return f.info, f.err
}

func (f *fakeChecker) ForceCheck(context.Context) (*host.UpdateSet, error) { return f.set, f.err }

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body.String(), err)
	}
	return out
}

func TestStatusHandler_Scopes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	agg := &fakeAssembler{}
	h := &StatusHandler{Aggregator: agg}
	r := gin.New()
	r.GET("/status", h.Full)
	r.GET("/server", h.Server)
	r.GET("/wordpress", h.Platform)

	w := do(r, http.MethodGet, "/server", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if _, ok := body["server"]; !ok {
		t.Fatalf("expected server section: %v", body)
	}
	if _, ok := body["wordpress"]; ok {
		t.Fatalf("server scope must not carry the platform section")
	}
	if body["plugin_version"] != "1.0.2" || body["timestamp"] != "2024-06-01T08:00:00Z" {
		t.Fatalf("unexpected envelope header: %v", body)
	}

	do(r, http.MethodGet, "/wordpress", nil)
	do(r, http.MethodGet, "/status", nil)
	want := []status.Scope{status.ServerOnly, status.PlatformOnly, status.Full}
	for i, s := range want {
		if agg.scopes[i] != s {
			t.Fatalf("scope %d: expected %v, got %v", i, s, agg.scopes[i])
		}
	}
}

func TestStatusHandler_Unavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	err := errors.Join(collect.ErrUnavailable, errors.New("db gone"))
	h := &StatusHandler{Aggregator: &fakeAssembler{err: err}}
	r := gin.New()
	r.GET("/status", h.Full)

	w := do(r, http.MethodGet, "/status", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if decode(t, w)["code"] != "host_unavailable" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	cases := []struct {
		name   string
		h      *HealthHandler
		status string
		checks model.HealthChecks
	}{
		{"healthy", &HealthHandler{Database: fakePinger{}, ContentRoot: t.TempDir(), Now: now}, "ok", model.HealthChecks{Database: true, Filesystem: true, Cron: true}},
		{"cron disabled", &HealthHandler{Database: fakePinger{}, ContentRoot: t.TempDir(), CronDisabled: true, Now: now}, "ok", model.HealthChecks{Database: true, Filesystem: true}},
		{"database down", &HealthHandler{Database: fakePinger{err: errors.New("refused")}, ContentRoot: t.TempDir(), Now: now}, "error", model.HealthChecks{Filesystem: true, Cron: true}},
		{"unwritable", &HealthHandler{Database: fakePinger{}, ContentRoot: filepath.Join(t.TempDir(), "missing"), Now: now}, "error", model.HealthChecks{Database: true, Cron: true}},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/health", tc.h.Check)
		w := do(r, http.MethodGet, "/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.name, w.Code)
		}
		var report model.HealthReport
		if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if report.Status != tc.status || report.Checks != tc.checks || report.Timestamp != "2024-06-01T08:00:00Z" {
			t.Fatalf("%s: unexpected report %+v", tc.name, report)
		}
	}
}

func TestPingHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &PingHandler{AgentVersion: "1.0.2", SiteURL: "https://example.test", Locale: "it"}
	r := gin.New()
	r.GET("/ping", h.Ping)

	body := decode(t, do(r, http.MethodGet, "/ping", nil))
	if body["status"] != "ok" || body["plugin_version"] != "1.0.2" || body["site_url"] != "https://example.test" {
		t.Fatalf("unexpected ping body %v", body)
	}
	if body["message"] != "Webmaster Monitor connesso correttamente" {
		t.Fatalf("expected localized message, got %v", body["message"])
	}
}

func TestUpdateHandler_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := "5.3"
	app := &fakeApplier{result: model.UpdateResult{Success: true, NewVersion: &v}}
	h := &UpdateHandler{Coordinator: app, Locale: "en"}
	r := gin.New()
	r.POST("/apply-update", h.Apply)

	w := do(r, http.MethodPost, "/apply-update", map[string]string{"type": "package", "slug": "akismet"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["new_version"] != "5.3" || body["message"] != "Plugin updated successfully" || body["type"] != "plugin" {
		t.Fatalf("unexpected body %v", body)
	}
	if app.kind != host.KindPlugin || app.id != "akismet" {
		t.Fatalf("unexpected apply call %s %s", app.kind, app.id)
	}
}

func TestUpdateHandler_Outcomes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    *update.Error
		status int
		code   string
	}{
		{"no update", &update.Error{Kind: update.NoUpdate, Message: "already latest"}, http.StatusOK, "no_update"},
		{"failed", &update.Error{Kind: update.InstallFailed, Message: "download failed"}, http.StatusInternalServerError, "install_failed"},
		{"fault", &update.Error{Kind: update.HostFault, Message: "boom"}, http.StatusInternalServerError, "host_fault"},
	}
	for _, tc := range cases {
		h := &UpdateHandler{Coordinator: &fakeApplier{err: tc.err}}
		r := gin.New()
		r.POST("/apply-update", h.Apply)
		w := do(r, http.MethodPost, "/apply-update", map[string]string{"type": "core", "slug": "ignored"})
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
		body := decode(t, w)
		if body["success"] != false || body["code"] != tc.code || body["error"] != tc.err.Message {
			t.Fatalf("%s: unexpected body %v", tc.name, body)
		}
	}
}

func TestUpdateHandler_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := &fakeApplier{}
	h := &UpdateHandler{Coordinator: app}
	r := gin.New()
	r.POST("/apply-update", h.Apply)

	cases := []struct {
		body map[string]string
		code string
	}{
		{map[string]string{"slug": "akismet"}, "invalid_request"},
		{map[string]string{"type": "plugin"}, "invalid_request"},
		{map[string]string{"type": "widget", "slug": "x"}, "invalid_type"},
	}
	for _, tc := range cases {
		w := do(r, http.MethodPost, "/apply-update", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d", tc.body, w.Code)
		}
		if decode(t, w)["code"] != tc.code {
			t.Fatalf("%v: unexpected body %s", tc.body, w.Body.String())
		}
	}
	if app.kind != "" {
		t.Fatalf("coordinator must not run on invalid input")
	}
}

func TestSelfUpdateHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	set := host.NewUpdateSet(host.KindPlugin)
	set.Response["webmaster-monitor/webmaster-monitor.php"] = host.Offer{NewVersion: "1.1.0"}
	checker := &fakeChecker{info: &selfupdate.RemoteVersionInfo{Version: "1.1.0"}, set: set}
	h := &SelfUpdateHandler{Poller: checker, CurrentVersion: "1.0.2", Basename: "webmaster-monitor/webmaster-monitor.php"}
	r := gin.New()
	r.GET("/self-update", h.Info)
	r.POST("/self-update/check", h.Check)

	body := decode(t, do(r, http.MethodGet, "/self-update", nil))
	remote, _ := body["remote"].(map[string]any)
	if body["current_version"] != "1.0.2" || remote["version"] != "1.1.0" {
		t.Fatalf("unexpected info %v", body)
	}

	body = decode(t, do(r, http.MethodPost, "/self-update/check", nil))
	if body["update_available"] != true || body["new_version"] != "1.1.0" {
		t.Fatalf("unexpected check %v", body)
	}

	checker.err = selfupdate.ErrRemoteUnavailable
	if w := do(r, http.MethodGet, "/self-update", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestEventsHandler_StreamsTopics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hb := hub.New()
	h := &EventsHandler{Hub: hb}
	r := gin.New()
	r.GET("/events", h.Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?topics=updates"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello map[string]any
	if err := conn.ReadJSON(&hello); err != nil || hello["type"] != "subscribed" {
		t.Fatalf("unexpected hello %v %v", hello, err)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var pong map[string]any
	if err := conn.ReadJSON(&pong); err != nil || pong["type"] != "pong" {
		t.Fatalf("expected pong, got %v %v", pong, err)
	}

	if err := hb.Publish(hub.TopicSelfUpdate, map[string]string{"event": "fetched"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := hb.Publish(hub.TopicUpdates, map[string]string{"state": "installing"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	var ev hub.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	data, _ := ev.Data.(map[string]any)
	if ev.Topic != hub.TopicUpdates || data["state"] != "installing" {
		t.Fatalf("expected only the subscribed topic, got %+v", ev)
	}
}

func TestHealthHandler_Idempotent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &HealthHandler{Database: fakePinger{}, ContentRoot: t.TempDir()}
	r := gin.New()
	r.GET("/health", h.Check)

	var first, second model.HealthReport
	_ = json.Unmarshal(do(r, http.MethodGet, "/health", nil).Body.Bytes(), &first)
	_ = json.Unmarshal(do(r, http.MethodGet, "/health", nil).Body.Bytes(), &second)
	if first.Status != second.Status || first.Checks != second.Checks {
		t.Fatalf("repeated health checks differ: %+v vs %+v", first, second)
	}
	entries, err := os.ReadDir(h.ContentRoot)
	if err != nil || len(entries) != 0 {
		t.Fatalf("probe files must be removed, found %d", len(entries))
	}
}

type fakeDetails struct {
	details map[string]*host.Details
	err     error
}

func (f fakeDetails) Details(_ context.Context, slug string) (*host.Details, error) {
	return f.details[slug], f.err
}

func TestDetailsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	src := fakeDetails{details: map[string]*host.Details{
		"webmaster-monitor": {Name: "Webmaster Monitor", Slug: "webmaster-monitor", Version: "1.1.0"},
	}}
	h := &DetailsHandler{Catalog: src, Locale: "en"}
	r := gin.New()
	r.GET("/details/:slug", h.Get)

	w := do(r, http.MethodGet, "/details/webmaster-monitor", nil)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["version"] != "1.1.0" || body["slug"] != "webmaster-monitor" {
		t.Fatalf("unexpected details %d %v", w.Code, body)
	}

	w = do(r, http.MethodGet, "/details/unknown", nil)
	if body := decode(t, w); w.Code != http.StatusNotFound || body["code"] != "details_not_found" {
		t.Fatalf("expected 404 details_not_found, got %d %v", w.Code, body)
	}

	h.Catalog = fakeDetails{err: errors.New("database is locked")}
	if w := do(r, http.MethodGet, "/details/webmaster-monitor", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
