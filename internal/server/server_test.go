package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ordernotify/internal/bus"
	"ordernotify/internal/composer"
	"ordernotify/internal/dispatch"
	"ordernotify/internal/domain"
	"ordernotify/internal/message"
	"ordernotify/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type stubRenderer struct{}

func (stubRenderer) RenderOrderPDF(ctx context.Context, order domain.OrderRef) ([]byte, error) {
	return []byte("%PDF-1.4 " + order.Name), nil
}

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAlerter) Alert(ctx context.Context, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

// wahaRecorder captures text delivery requests made to the messaging endpoint.
type wahaRecorder struct {
	mu       sync.Mutex
	status   int
	requests []wahaRequest
}

type wahaRequest struct {
	Path   string
	ChatID string
	Text   string
}

func (w *wahaRecorder) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body struct {
			ChatID string `json:"chatId"`
			Text   string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		w.mu.Lock()
		w.requests = append(w.requests, wahaRequest{Path: r.URL.Path, ChatID: body.ChatID, Text: body.Text})
		status := w.status
		w.mu.Unlock()

		if status == 0 {
			status = http.StatusCreated
		}
		rw.WriteHeader(status)
	}
}

func (w *wahaRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.requests)
}

func (w *wahaRecorder) last() wahaRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests[len(w.requests)-1]
}

type env struct {
	store  *store.SQLiteStore
	alerts *recordingAlerter
	waha   *wahaRecorder
	srv    *httptest.Server
}

func newEnv(t *testing.T, uploadHandler http.Handler) *env {
	t.Helper()
	logger := testLogger()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	waha := &wahaRecorder{}
	wahaSrv := httptest.NewServer(waha.handler())
	t.Cleanup(wahaSrv.Close)

	if uploadHandler == nil {
		uploadHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	uploadSrv := httptest.NewServer(uploadHandler)
	t.Cleanup(uploadSrv.Close)

	ctx := context.Background()
	st.Set(ctx, dispatch.KeyWahaBaseURL, wahaSrv.URL+"/api")
	st.Set(ctx, dispatch.KeyWahaSessionID, "default")
	st.Set(ctx, dispatch.KeyUploadURL, uploadSrv.URL+"/upload")
	st.Set(ctx, dispatch.KeyUploadToken, "secret-token")

	eventBus := bus.New(16, logger)
	t.Cleanup(eventBus.Close)
	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eventBus.Run(runCtx)

	dispatcher := dispatch.New(dispatch.Config{Settings: st, Audit: st, Logger: logger})
	templates := message.Defaults()
	alerts := &recordingAlerter{}
	dispatch.RegisterHooks(eventBus, dispatcher, templates, alerts, logger)

	comp := composer.New(composer.Config{
		Renderer:    stubRenderer{},
		Attachments: st,
		Dispatcher:  dispatcher,
		Templates:   templates,
		Logger:      logger,
	})

	s := New(Config{
		Logger:         logger,
		Bus:            eventBus,
		Composer:       comp,
		Settings:       st,
		Audit:          st,
		MetricsEnabled: true,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &env{store: st, alerts: alerts, waha: waha, srv: srv}
}

func (e *env) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *env) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 3s")
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatal(err)
	}
}

// --- Events ---

func TestEvents_ConfirmDeliversTextAndAudits(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.post(t, "/api/events",
		`{"type":"order.confirmed","order":{"name":"SO001","customerPhone":"11988887777"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return e.waha.count() == 1 })
	req := e.waha.last()
	if req.ChatID != "5511988887777@s.whatsapp.net" {
		t.Errorf("unexpected chatId: %s", req.ChatID)
	}
	if !strings.Contains(req.Text, "SO001") || !strings.Contains(req.Text, "confirmed") {
		t.Errorf("unexpected message text: %s", req.Text)
	}
	if !strings.HasSuffix(req.Path, "/default/messages/text") {
		t.Errorf("unexpected messaging path: %s", req.Path)
	}

	waitFor(t, func() bool {
		entries, _ := e.store.ListAudit(context.Background(), "SO001", 10)
		return len(entries) == 1
	})
	entries, _ := e.store.ListAudit(context.Background(), "SO001", 10)
	if entries[0].Action != "text_sent" {
		t.Errorf("unexpected audit action: %s", entries[0].Action)
	}
}

func TestEvents_CancelUsesCancellationText(t *testing.T) {
	e := newEnv(t, nil)

	e.post(t, "/api/events",
		`{"type":"order.cancelled","order":{"name":"SO002","customerMobile":"11977776666"}}`)

	waitFor(t, func() bool { return e.waha.count() == 1 })
	req := e.waha.last()
	if req.ChatID != "5511977776666@s.whatsapp.net" {
		t.Errorf("mobile fallback not applied: %s", req.ChatID)
	}
	if !strings.Contains(req.Text, "cancelled") {
		t.Errorf("unexpected message text: %s", req.Text)
	}
}

func TestEvents_UnknownType(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.post(t, "/api/events", `{"type":"order.shipped","order":{"name":"SO001"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEvents_MissingOrderName(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.post(t, "/api/events", `{"type":"order.confirmed","order":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEvents_InvalidJSON(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.post(t, "/api/events", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// A delivery failure on the hook path must never surface to the host:
// the response stays 202, no audit entry is written, operators get an alert.
func TestEvents_DeliveryFailureStillAccepted(t *testing.T) {
	e := newEnv(t, nil)
	e.waha.status = http.StatusInternalServerError

	resp := e.post(t, "/api/events",
		`{"type":"order.confirmed","order":{"name":"SO003","customerPhone":"11988887777"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 despite delivery failure, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return e.alerts.count() == 1 })
	entries, _ := e.store.ListAudit(context.Background(), "SO003", 10)
	if len(entries) != 0 {
		t.Errorf("failed delivery must not write audit entries, got %d", len(entries))
	}
}

// --- Settings ---

func TestSettings_PutAndListRedactsToken(t *testing.T) {
	e := newEnv(t, nil)

	body := bytes.NewReader([]byte(`{"value":"https://waha.example.com/api"}`))
	req, _ := http.NewRequest("PUT", e.srv.URL+"/api/settings/waha.base_url", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	listResp := e.get(t, "/api/settings")
	var values map[string]string
	decodeBody(t, listResp, &values)

	if values[dispatch.KeyWahaBaseURL] != "https://waha.example.com/api" {
		t.Errorf("setting not updated: %s", values[dispatch.KeyWahaBaseURL])
	}
	if values[dispatch.KeyUploadToken] != "***" {
		t.Errorf("upload token must be redacted, got %q", values[dispatch.KeyUploadToken])
	}
}

// --- Audit ---

func TestAudit_RequiresOrderParam(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.get(t, "/api/audit")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAudit_EmptyTrailIsEmptyArray(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.get(t, "/api/audit?order=NOPE")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var entries []domain.AuditEntry
	decodeBody(t, resp, &entries)
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty array, got %v", entries)
	}
}

// --- Composer ---

func TestComposerOpen_PrefillsForm(t *testing.T) {
	e := newEnv(t, nil)

	resp := e.post(t, "/api/composer/open", `{"name":"SO001","customerPhone":"11988887777"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var form domain.ComposerForm
	decodeBody(t, resp, &form)

	if form.Phone != "11988887777" {
		t.Errorf("unexpected phone: %s", form.Phone)
	}
	if !strings.Contains(form.Message, "SO001") {
		t.Errorf("default message should mention the order: %s", form.Message)
	}
	if len(form.AttachmentIDs) != 1 {
		t.Fatalf("expected one attachment, got %d", len(form.AttachmentIDs))
	}

	att, err := e.store.GetAttachment(context.Background(), form.AttachmentIDs[0])
	if err != nil || att == nil {
		t.Fatalf("attachment not stored: %v", err)
	}
	if att.Name != "SO001.pdf" || att.MimeType != "application/pdf" {
		t.Errorf("unexpected attachment: %+v", att)
	}
}

func TestComposerSend_FullFlow(t *testing.T) {
	var mu sync.Mutex
	var gotAuth, gotOrderName string
	uploads := 0
	uploadHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		mu.Lock()
		uploads++
		gotAuth = r.Header.Get("Authorization")
		gotOrderName = r.FormValue("order_name")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	e := newEnv(t, uploadHandler)

	openResp := e.post(t, "/api/composer/open", `{"name":"SO001","customerPhone":"11988887777"}`)
	var form domain.ComposerForm
	decodeBody(t, openResp, &form)

	payload, _ := json.Marshal(form)
	sendResp := e.post(t, "/api/composer/send", string(payload))
	if sendResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", sendResp.StatusCode)
	}

	mu.Lock()
	if uploads != 1 {
		t.Errorf("expected one upload, got %d", uploads)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("unexpected auth header: %s", gotAuth)
	}
	if gotOrderName != "SO001" {
		t.Errorf("unexpected order_name field: %s", gotOrderName)
	}
	mu.Unlock()

	if e.waha.count() != 1 {
		t.Fatalf("expected one text delivery, got %d", e.waha.count())
	}
	if e.waha.last().ChatID != "5511988887777@s.whatsapp.net" {
		t.Errorf("unexpected chatId: %s", e.waha.last().ChatID)
	}

	entries, _ := e.store.ListAudit(context.Background(), "SO001", 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries (upload + text), got %d", len(entries))
	}
}

func TestComposerSend_MissingSettings(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Set(context.Background(), dispatch.KeyWahaBaseURL, "")

	resp := e.post(t, "/api/composer/send",
		`{"order":{"name":"SO001"},"phone":"11988887777","message":"hi"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if !strings.Contains(body["error"], dispatch.KeyWahaBaseURL) {
		t.Errorf("error should name the missing key: %s", body["error"])
	}
}

func TestComposerSend_DeliveryFailure(t *testing.T) {
	e := newEnv(t, nil)
	e.waha.status = http.StatusInternalServerError

	resp := e.post(t, "/api/composer/send",
		`{"order":{"name":"SO001"},"phone":"11988887777","message":"hi"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	// The transport detail stays in the logs; the client gets the generic text.
	if !strings.Contains(body["error"], "Failed to send the message") {
		t.Errorf("unexpected error text: %s", body["error"])
	}
	if strings.Contains(body["error"], "500") {
		t.Errorf("status detail must not leak to the client: %s", body["error"])
	}
}

// --- Misc ---

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	resp := e.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "ordernotify_uptime_seconds") {
		t.Errorf("metrics output missing uptime gauge")
	}
}
