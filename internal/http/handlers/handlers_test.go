package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/services"
)

// ---------- stubs ----------

type stubConv struct {
	mu     sync.Mutex
	events []services.InboundEvent
	handle func(services.InboundEvent) error
	survey func(string) error
}

func (s *stubConv) HandleEvent(_ context.Context, ev services.InboundEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if s.handle != nil {
		return s.handle(ev)
	}
	return nil
}

func (s *stubConv) RequestSurvey(_ context.Context, id string) error {
	if s.survey != nil {
		return s.survey(id)
	}
	return nil
}

type stubSessions struct {
	active   func(page, size int) ([]domain.Session, int64, error)
	messages func(id string, page, size int) ([]domain.Message, int64, error)
	stats    func() (int64, *time.Time, error)
	msgStats func(id string) (int64, *time.Time, error)
}

func (s stubSessions) ListActivePage(_ context.Context, page, size int) ([]domain.Session, int64, error) {
	if s.active != nil {
		return s.active(page, size)
	}
	return nil, 0, nil
}

func (s stubSessions) ListMessagesPage(_ context.Context, id string, page, size int) ([]domain.Message, int64, error) {
	if s.messages != nil {
		return s.messages(id, page, size)
	}
	return nil, 0, nil
}

func (s stubSessions) ActiveStats(context.Context) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats()
	}
	return 0, nil, nil
}

func (s stubSessions) MessageStats(_ context.Context, id string) (int64, *time.Time, error) {
	if s.msgStats != nil {
		return s.msgStats(id)
	}
	return 0, nil, nil
}

type stubSweeper struct {
	rep services.SweepReport
	err error
}

func (s stubSweeper) Sweep(context.Context) (services.SweepReport, error) { return s.rep, s.err }

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whatsapp", h.VerifyWhatsApp)
	r.POST("/whatsapp", h.WhatsAppWebhook)
	r.POST("/twilio", h.TwilioWebhook)
	r.GET("/sessions/active", h.ListActiveSessions)
	r.GET("/sessions/:id/messages", h.ListSessionMessages)
	r.POST("/sessions/:id/close", h.CloseSession)
	r.POST("/sweep", h.RunSweep)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}

const cloudBody = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "contacts": [{"wa_id": "573001112233", "profile": {"name": "Ana"}}],
        "messages": [
          {"from": "573001112233", "id": "wamid.A", "type": "text", "text": {"body": "hola"}},
          {"from": "573001112233", "id": "wamid.B", "type": "image"},
          {"from": "573001112233", "id": "wamid.C", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "001", "title": "Acepto"}}}
        ]
      }
    }]
  }]
}`

// ---------- webhook ----------

func TestVerifyWhatsApp(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		query  string
		status int
		body   string
	}{
		{"match", "tok", "hub.mode=subscribe&hub.verify_token=tok&hub.challenge=123", http.StatusOK, "123"},
		{"no mode", "tok", "hub.verify_token=tok&hub.challenge=abc", http.StatusOK, "abc"},
		{"wrong token", "tok", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusBadRequest, ""},
		{"no challenge", "tok", "hub.mode=subscribe&hub.verify_token=tok", http.StatusBadRequest, ""},
		{"unconfigured", "", "hub.mode=subscribe&hub.verify_token=&hub.challenge=1", http.StatusBadRequest, ""},
		{"bad mode", "tok", "hub.mode=unsubscribe&hub.verify_token=tok&hub.challenge=1", http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(New(&stubConv{}, stubSessions{}, stubSweeper{}, tc.token))
			w := do(r, httptest.NewRequest(http.MethodGet, "/whatsapp?"+tc.query, nil))
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %q", w.Body.String())
			}
		})
	}
}

func TestWhatsAppWebhook_DispatchesEveryMessage(t *testing.T) {
	conv := &stubConv{}
	r := newRouter(New(conv, stubSessions{}, stubSweeper{}, "tok"))

	w := do(r, httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(cloudBody)))
	if w.Code != http.StatusOK || w.Body.String() != ackText {
		t.Fatalf("response = %d %q", w.Code, w.Body.String())
	}
	if len(conv.events) != 3 {
		t.Fatalf("expected 3 dispatched events, got %d", len(conv.events))
	}
	first, image, button := conv.events[0], conv.events[1], conv.events[2]
	if first.Provider != "cloud" || first.EventID != "wamid.A" || first.From != "573001112233" || first.Name != "Ana" || first.Text != "hola" {
		t.Fatalf("first event = %+v", first)
	}
	// Without text, but still delivered so it counts as activity.
	if image.EventID != "wamid.B" || image.Kind != "image" || image.Text != "" {
		t.Fatalf("image event = %+v", image)
	}
	if button.EventID != "wamid.C" || button.Kind != "interactive" || button.Text != "Acepto" {
		t.Fatalf("button event = %+v", button)
	}
}

func TestWhatsAppWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body acknowledged", "{not json", nil, http.StatusOK},
		{"status callback acknowledged", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`, nil, http.StatusOK},
		{"duplicate acknowledged", cloudBody, services.ErrDuplicateEvent, http.StatusOK},
		{"persistence failure asks for redelivery", cloudBody, errors.New("db down"), http.StatusInternalServerError},
		{"retries exhausted asks for redelivery", cloudBody, services.ErrConcurrentUpdate, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conv := &stubConv{handle: func(services.InboundEvent) error { return tc.err }}
			r := newRouter(New(conv, stubSessions{}, stubSweeper{}, ""))
			w := do(r, httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(tc.body)))
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusInternalServerError {
				if er := decodeErr(t, w); er.Code != ErrCodeEventFailed {
					t.Fatalf("code = %q", er.Code)
				}
				// One failure does not stop the rest of the batch.
				if len(conv.events) != 3 {
					t.Fatalf("expected every event attempted, got %d", len(conv.events))
				}
			}
		})
	}
}

func TestTwilioWebhook(t *testing.T) {
	conv := &stubConv{}
	r := newRouter(New(conv, stubSessions{}, stubSweeper{}, ""))

	form := url.Values{
		"From":        {"whatsapp:+573001112233"},
		"Body":        {"No acepto"},
		"MessageSid":  {"SM123"},
		"ProfileName": {"Ana"},
	}
	req := httptest.NewRequest(http.MethodPost, "/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(r, req)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<Response></Response>") {
		t.Fatalf("response = %d %q", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/xml") {
		t.Fatalf("content type = %q", w.Header().Get("Content-Type"))
	}
	if len(conv.events) != 1 {
		t.Fatalf("events = %d", len(conv.events))
	}
	ev := conv.events[0]
	if ev.Provider != "twilio" || ev.From != "573001112233" || ev.EventID != "SM123" || ev.Text != "No acepto" {
		t.Fatalf("event = %+v", ev)
	}

	// No sender: acknowledged, nothing dispatched.
	req = httptest.NewRequest(http.MethodPost, "/twilio", strings.NewReader("Body=hola"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := do(r, req); w.Code != http.StatusOK || len(conv.events) != 1 {
		t.Fatalf("senderless form: %d, events %d", w.Code, len(conv.events))
	}

	// Persistence failure.
	conv.handle = func(services.InboundEvent) error { return errors.New("db down") }
	req = httptest.NewRequest(http.MethodPost, "/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := do(r, req); w.Code != http.StatusInternalServerError {
		t.Fatalf("failure status = %d", w.Code)
	}
}

// ---------- sessions ----------

func TestListActiveSessions(t *testing.T) {
	name := "Ana"
	started := time.Date(2025, 10, 1, 14, 0, 0, 0, time.UTC)
	newest := started.Add(time.Minute)
	sessions := stubSessions{
		stats: func() (int64, *time.Time, error) { return 3, &newest, nil },
		active: func(page, size int) ([]domain.Session, int64, error) {
			if page != 2 || size != 2 {
				t.Fatalf("page/size = %d/%d", page, size)
			}
			return []domain.Session{{
				ID:           "s1",
				CurrentState: domain.StateAccepted,
				StartedAt:    started,
				User:         domain.User{Phone: "573001112233", Name: &name},
			}}, 3, nil
		},
	}
	r := newRouter(New(&stubConv{}, sessions, stubSweeper{}, ""))

	w := do(r, httptest.NewRequest(http.MethodGet, "/sessions/active?page=2&page_size=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"sessions:active:`) {
		t.Fatalf("etag = %q", etag)
	}
	var resp ListSessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("sessions = %+v", resp.Sessions)
	}
	got := resp.Sessions[0]
	if got.UserPhone != "573001112233" || got.UserName != "Ana" || got.State != "aceptado" || got.StateDescription == "" {
		t.Fatalf("view = %+v", got)
	}
	if p := resp.Pagination; p.Total != 3 || p.TotalPages != 2 || p.HasNext || p.Page != 2 {
		t.Fatalf("pagination = %+v", p)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/active?page=2&page_size=2", nil)
	req.Header.Set("If-None-Match", etag)
	if w := do(r, req); w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d", w.Code)
	}
}

func TestListActiveSessions_Failure(t *testing.T) {
	sessions := stubSessions{active: func(int, int) ([]domain.Session, int64, error) { return nil, 0, errors.New("boom") }}
	r := newRouter(New(&stubConv{}, sessions, stubSweeper{}, ""))
	w := do(r, httptest.NewRequest(http.MethodGet, "/sessions/active?page_size=1000", nil))
	if w.Code != http.StatusInternalServerError || decodeErr(t, w).Code != ErrCodeListFailed {
		t.Fatalf("response = %d %s", w.Code, w.Body.String())
	}
}

func TestListSessionMessages(t *testing.T) {
	id := uuid.NewString()
	sessions := stubSessions{
		messages: func(sid string, page, size int) ([]domain.Message, int64, error) {
			if sid != id {
				return nil, 0, services.ErrSessionNotFound
			}
			return []domain.Message{{ID: "m1", SessionID: sid, Direction: domain.DirectionIn, Body: "hola", Type: domain.MessageTypeText}}, 1, nil
		},
	}
	r := newRouter(New(&stubConv{}, sessions, stubSweeper{}, ""))

	w := do(r, httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Body != "hola" || resp.Pagination.PageSize != 20 {
		t.Fatalf("resp = %+v", resp)
	}

	if w := do(r, httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid/messages", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}
	w = do(r, httptest.NewRequest(http.MethodGet, "/sessions/"+uuid.NewString()+"/messages", nil))
	if w.Code != http.StatusNotFound || decodeErr(t, w).Code != ErrCodeNotFound {
		t.Fatalf("unknown session = %d %s", w.Code, w.Body.String())
	}
}

func TestCloseSession_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"not found", services.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"closed", services.ErrSessionClosed, http.StatusConflict, ErrCodeSessionClosed},
		{"internal", errors.New("db down"), http.StatusInternalServerError, ErrCodeCloseFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			conv := &stubConv{survey: func(id string) error { got = id; return tc.err }}
			r := newRouter(New(conv, stubSessions{}, stubSweeper{}, ""))
			id := uuid.NewString()

			w := do(r, httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/close", nil))
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			if got != id {
				t.Fatalf("engine got id %q", got)
			}
			if tc.code != "" {
				if er := decodeErr(t, w); er.Code != tc.code {
					t.Fatalf("code = %q", er.Code)
				}
				return
			}
			var resp CloseSessionResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.State != "esperando_calificacion" {
				t.Fatalf("resp = %+v err=%v", resp, err)
			}
		})
	}

	r := newRouter(New(&stubConv{}, stubSessions{}, stubSweeper{}, ""))
	if w := do(r, httptest.NewRequest(http.MethodPost, "/sessions/42/close", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("non-uuid status = %d", w.Code)
	}
}

func TestRunSweep(t *testing.T) {
	r := newRouter(New(&stubConv{}, stubSessions{}, stubSweeper{rep: services.SweepReport{Scanned: 4, Warned: 1, Abandoned: 1}}, ""))
	w := do(r, httptest.NewRequest(http.MethodPost, "/sweep", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rep services.SweepReport
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil || rep.Scanned != 4 || rep.Warned != 1 || rep.Abandoned != 1 {
		t.Fatalf("report = %+v err=%v", rep, err)
	}

	r = newRouter(New(&stubConv{}, stubSessions{}, stubSweeper{err: context.Canceled}, ""))
	if w := do(r, httptest.NewRequest(http.MethodPost, "/sweep", nil)); w.Code != http.StatusInternalServerError {
		t.Fatalf("failure status = %d", w.Code)
	}
}
