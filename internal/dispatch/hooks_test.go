package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ordernotify/internal/bus"
	"ordernotify/internal/domain"
	"ordernotify/internal/message"
)

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAlerter) Alert(_ context.Context, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

func (a *recordingAlerter) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestHooks_ConfirmSendsTemplatedMessage(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
	}))
	defer srv.Close()

	audit := &recordingAudit{}
	d := newDispatcher(settingsFor(srv.URL, srv.URL), audit)

	eventBus := bus.New(10, testLogger())
	defer eventBus.Close()
	RegisterHooks(eventBus, d, message.Defaults(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eventBus.Run(ctx)

	eventBus.Publish(domain.OrderEvent{
		Kind:  domain.EventOrderConfirmed,
		Order: domain.OrderRef{Name: "SO001", CustomerPhone: "11988887777"},
	})

	waitFor(t, func() bool { return audit.count() == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 message POST, got %d", len(bodies))
	}
	if bodies[0]["chatId"] != "5511988887777@s.whatsapp.net" {
		t.Errorf("unexpected chatId: %s", bodies[0]["chatId"])
	}
	if !strings.Contains(bodies[0]["text"], "SO001") || !strings.Contains(bodies[0]["text"], "confirmed") {
		t.Errorf("unexpected confirmation text: %s", bodies[0]["text"])
	}
}

func TestHooks_CancelUsesCancellationTemplate(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body["text"])
		mu.Unlock()
	}))
	defer srv.Close()

	audit := &recordingAudit{}
	d := newDispatcher(settingsFor(srv.URL, srv.URL), audit)

	eventBus := bus.New(10, testLogger())
	defer eventBus.Close()
	RegisterHooks(eventBus, d, message.Defaults(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eventBus.Run(ctx)

	eventBus.Publish(domain.OrderEvent{
		Kind:  domain.EventOrderCancelled,
		Order: domain.OrderRef{Name: "SO002", CustomerMobile: "11977776666"},
	})

	waitFor(t, func() bool { return audit.count() == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 1 || !strings.Contains(texts[0], "cancelled") {
		t.Errorf("expected cancellation text, got %v", texts)
	}
}

func TestHooks_DeliveryFailureIsSwallowedAndAlerted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audit := &recordingAudit{}
	d := newDispatcher(settingsFor(srv.URL, srv.URL), audit)
	alerter := &recordingAlerter{}

	eventBus := bus.New(10, testLogger())
	defer eventBus.Close()
	RegisterHooks(eventBus, d, message.Defaults(), alerter, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eventBus.Run(ctx)

	// Publish must not block or propagate the failure.
	eventBus.Publish(domain.OrderEvent{
		Kind:  domain.EventOrderConfirmed,
		Order: domain.OrderRef{Name: "SO003", CustomerPhone: "11988887777"},
	})

	waitFor(t, func() bool { return len(alerter.all()) == 1 })

	if audit.count() != 0 {
		t.Errorf("failed hook delivery must not create an audit entry")
	}
	msgs := alerter.all()
	if !strings.Contains(msgs[0], "SO003") || !strings.Contains(msgs[0], string(domain.EventOrderConfirmed)) {
		t.Errorf("alert should name the order and event: %s", msgs[0])
	}
}

func TestHooks_NoPhoneSkipsQuietly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected for an order without a phone")
	}))
	defer srv.Close()

	audit := &recordingAudit{}
	d := newDispatcher(settingsFor(srv.URL, srv.URL), audit)
	alerter := &recordingAlerter{}

	eventBus := bus.New(10, testLogger())
	defer eventBus.Close()
	RegisterHooks(eventBus, d, message.Defaults(), alerter, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eventBus.Run(ctx)

	eventBus.Publish(domain.OrderEvent{
		Kind:  domain.EventOrderConfirmed,
		Order: domain.OrderRef{Name: "SO004"},
	})

	// Give the bus time to dispatch.
	time.Sleep(100 * time.Millisecond)

	if audit.count() != 0 {
		t.Errorf("no audit entry expected, got %d", audit.count())
	}
	if len(alerter.all()) != 0 {
		t.Errorf("a skipped send is not a failure, no alert expected")
	}
}
