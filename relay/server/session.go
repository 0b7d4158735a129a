package server

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/protocol"
)

// Session is the server-side state for one connected client, from
// handshake to closure. It runs two goroutines: run (the inbound read
// loop) and writeLoop (draining the outbound queue), so a peer that reads
// slowly never blocks the hub's dispatch.
type Session struct {
	id       string
	conn     net.Conn
	hub      *Hub
	logger   *log.Entry
	username string

	out       chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn net.Conn, hub *Hub, logger *log.Logger, buffer int) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		hub:    hub,
		logger: logger.WithFields(log.Fields{"conn": id, "remote": conn.RemoteAddr().String()}),
		out:    make(chan string, buffer),
		closed: make(chan struct{}),
	}
}

// run performs the connect handshake and then reads client intents until
// the stream closes. It owns the session lifecycle: every exit path goes
// through Close exactly once.
func (s *Session) run(handshakeTimeout time.Duration) {
	defer s.Close()

	reader := bufio.NewReader(s.conn)
	if handshakeTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	}
	line, err := readLine(reader)
	if err != nil {
		s.logger.Debugf("handshake read: %v", err)
		return
	}
	req, err := protocol.ParseRequest(line)
	if err != nil || req.Kind != protocol.RequestConnect {
		s.reject("expected CONNECT")
		return
	}
	username, err := domain.NormalizeUsername(req.Username)
	if err != nil {
		s.reject(err.Error())
		return
	}
	s.username = username
	s.logger = s.logger.WithField("username", username)

	// Established connections have no read timeout; peer loss is detected
	// by the blocking read failing.
	s.conn.SetReadDeadline(time.Time{})
	go s.writeLoop()

	if !s.hub.admit(s) {
		s.reject("username already taken")
		return
	}
	s.logger.Info("session active")

	for {
		line, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				s.logger.Debugf("read: %v", err)
			}
			return
		}
		req, err := protocol.ParseRequest(line)
		if err != nil || req.Kind == protocol.RequestConnect {
			// Tolerant protocol: malformed intents are discarded, the
			// session continues.
			s.logger.Debugf("dropping malformed line %q", line)
			continue
		}
		s.hub.Apply(s.username, req)
	}
}

// reject reports a handshake failure to this peer only. The session never
// activated, so closing it has no presence or broadcast side effects.
func (s *Session) reject(reason string) {
	s.logger.WithField("reason", reason).Info("handshake rejected")
	io.WriteString(s.conn, protocol.Event{Kind: protocol.EventConnectError, Reason: reason}.Encode()+"\n")
}

// enqueue hands a line to the writer goroutine without blocking. It returns
// false when the session is closed or its buffer is full.
func (s *Session) enqueue(line string) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case line := <-s.out:
			if _, err := io.WriteString(s.conn, line+"\n"); err != nil {
				s.logger.Debugf("write: %v", err)
				s.Close()
				return
			}
		}
	}
}

// Close is idempotent. It always releases the underlying stream; if the
// session had activated, dropping it from the hub also removes the
// username from the registry and broadcasts the departure.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
		s.hub.drop(s)
	})
}

// readLine reads one newline-terminated line, trimming the terminator. A
// partial line at EOF is treated as stream closure.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
