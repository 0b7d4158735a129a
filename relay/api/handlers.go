// Package api exposes the relay's admin surface: health, state snapshots
// and an SSE observer stream of the broadcast feed. It is read-only; all
// mutations travel the TCP line protocol.
package api

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Board exposes the relay's live state to the admin surface.
type Board interface {
	Tasks() []domain.Task
	OnlineUsers() []string
	SessionCount() int
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type statsResponse struct {
	Tasks       int      `json:"tasks"`
	Sessions    int      `json:"sessions"`
	OnlineUsers []string `json:"onlineUsers"`
}

// Register wires up the admin routes and returns the broadcast tap feeding
// the /stream observers.
func Register(e *echo.Echo, board Board, logger *log.Logger) func(line string) {
	broker := newEventBroker()
	e.GET("/healthz", healthz())
	e.GET("/api/tasks", getTasks(board))
	e.GET("/api/stats", getStats(board))
	e.GET("/stream", streamEvents(broker, logger))
	return broker.Notify
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}
}

func getTasks(board Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks := board.Tasks()
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func getStats(board Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		users := board.OnlineUsers()
		if users == nil {
			users = []string{}
		}
		return c.JSON(http.StatusOK, statsResponse{
			Tasks:       len(board.Tasks()),
			Sessions:    board.SessionCount(),
			OnlineUsers: users,
		})
	}
}

// eventBroker fans broadcast lines out to SSE subscribers. Notify never
// blocks: a subscriber whose buffer is full misses the line (the stream is
// observational, replicas get their copy over TCP).
type eventBroker struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[chan string]struct{})}
}

func (b *eventBroker) subscribe() chan string {
	ch := make(chan string, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *eventBroker) unsubscribe(ch chan string) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *eventBroker) Notify(line string) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
	b.mu.Unlock()
}

func streamEvents(broker *eventBroker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line := <-ch:
				if _, err := c.Response().Write([]byte("data: " + line + "\n\n")); err != nil {
					logger.Debugf("stream write: %v", err)
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
