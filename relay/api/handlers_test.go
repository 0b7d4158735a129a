package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

type fakeBoard struct {
	tasks    []domain.Task
	users    []string
	sessions int
}

func (f *fakeBoard) Tasks() []domain.Task  { return f.tasks }
func (f *fakeBoard) OnlineUsers() []string { return f.users }
func (f *fakeBoard) SessionCount() int     { return f.sessions }

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

func discardLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	Register(e, &fakeBoard{}, discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestGetTasks(t *testing.T) {
	board := &fakeBoard{tasks: []domain.Task{
		{ID: 1, Description: "buy:milk", Completed: false, LastModifiedBy: "alice"},
	}}
	e := echo.New()
	Register(e, board, discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0] != board.tasks[0] {
		t.Fatalf("unexpected tasks %+v", resp.Tasks)
	}
}

func TestGetStats(t *testing.T) {
	board := &fakeBoard{
		tasks:    []domain.Task{{ID: 1}, {ID: 2}},
		users:    []string{"alice", "bob"},
		sessions: 2,
	}
	e := echo.New()
	Register(e, board, discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tasks != 2 || resp.Sessions != 2 || len(resp.OnlineUsers) != 2 {
		t.Fatalf("unexpected stats %+v", resp)
	}
}

func TestBrokerNotifyDoesNotBlock(t *testing.T) {
	broker := newEventBroker()
	ch := broker.subscribe()
	defer broker.unsubscribe(ch)
	// Fill the subscriber's buffer and keep notifying; Notify must not block.
	for i := 0; i < cap(ch)+8; i++ {
		broker.Notify("line")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer, got %d", len(ch))
	}
}

func TestStreamEventsForwardsBroadcastLines(t *testing.T) {
	broker := newEventBroker()
	handler := streamEvents(broker, discardLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- handler(c) }()
	time.Sleep(50 * time.Millisecond)
	broker.Notify("ADD:1:buy milk:false:alice")
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := "data: ADD:1:buy milk:false:alice\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
