// Package client connects a replica of the shared task board to a relay.
// The connection is a single duplex TCP stream: intents are fire-and-forget
// writes, and the replica is updated exclusively by the inbound broadcast
// stream, so the view a client renders is a pure function of what the
// relay has ordered.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/protocol"
)

// HandshakeRejectedError reports that the relay refused the connect
// request, typically because the username is already taken.
type HandshakeRejectedError struct {
	Reason string
}

func (e *HandshakeRejectedError) Error() string {
	return "connect rejected: " + e.Reason
}

// Option configures a Client.
type Option func(*Client)

// WithLogger replaces the standard logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithChangeHandler registers a callback invoked after every event applied
// to the replica (and once after the handshake seeds it). It is never
// invoked concurrently with itself, so view layers can re-render from it
// without extra synchronization.
func WithChangeHandler(fn func()) Option {
	return func(c *Client) { c.onChange = fn }
}

// Client is one live connection to a relay.
type Client struct {
	conn     net.Conn
	reader   *bufio.Reader
	logger   *log.Logger
	onChange func()

	writeMu  sync.Mutex
	replica  *Replica
	username string

	closed    atomic.Bool
	closeOnce sync.Once
}

// Dial opens the TCP stream. The connection is not usable until Connect
// succeeds.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		logger:  log.StandardLogger(),
		replica: newReplica(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect performs the handshake. The username is validated locally before
// anything is written; a relay rejection is returned as
// *HandshakeRejectedError and closes the stream. On success the presence
// set is seeded from the CONNECT_OK payload plus the own name. A context
// deadline bounds the whole handshake.
func (c *Client) Connect(ctx context.Context, username string) error {
	name, err := domain.NormalizeUsername(username)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	if err := c.send(protocol.Request{Kind: protocol.RequestConnect, Username: name}.Encode()); err != nil {
		return err
	}
	line, err := c.readLine()
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}
	ev, err := protocol.ParseEvent(line)
	if err != nil {
		return fmt.Errorf("handshake reply %q: %w", line, err)
	}
	switch ev.Kind {
	case protocol.EventConnectOK:
		c.username = name
		c.replica.seed(append(ev.Users, name))
		c.notifyChange()
		return nil
	case protocol.EventConnectError:
		c.Close()
		return &HandshakeRejectedError{Reason: ev.Reason}
	}
	return fmt.Errorf("unexpected handshake reply %q", line)
}

// Listen runs the inbound read loop, applying every decoded broadcast to
// the replica. Undecodable lines are logged and skipped; they never end
// the connection. Listen returns nil on clean shutdown (relay EOF or a
// local Close) and the transport error otherwise. The loss of the peer is
// terminal: there is no automatic reconnect.
func (c *Client) Listen() error {
	for {
		line, err := c.readLine()
		if err != nil {
			c.Close()
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		ev, perr := protocol.ParseEvent(line)
		if perr != nil {
			c.logger.Debugf("skipping undecodable line %q", line)
			continue
		}
		c.replica.apply(ev)
		c.notifyChange()
	}
}

// Add sends a create intent. The task appears in the replica when the
// relay's broadcast echo returns.
func (c *Client) Add(description string) error {
	return c.send(protocol.Request{Kind: protocol.RequestAdd, Description: description}.Encode())
}

// Update sends a mutate intent for the given task id.
func (c *Client) Update(id int, description string, completed bool) error {
	return c.send(protocol.Request{
		Kind:        protocol.RequestUpdate,
		ID:          id,
		Description: description,
		Completed:   completed,
	}.Encode())
}

// Delete sends a remove intent for the given task id.
func (c *Client) Delete(id int) error {
	return c.send(protocol.Request{Kind: protocol.RequestDelete, ID: id}.Encode())
}

// Tasks returns the replica's task collection in board order.
func (c *Client) Tasks() []domain.Task { return c.replica.Tasks() }

// OnlineUsers returns the replica's presence set, alphabetical.
func (c *Client) OnlineUsers() []string { return c.replica.Users() }

// Username returns the name this client connected as.
func (c *Client) Username() string { return c.username }

// Close releases the stream. It is idempotent and safe to call from any
// goroutine; a blocked Listen returns nil once the stream is closed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.conn.Close()
	})
	return nil
}

// send writes one line. The write mutex keeps concurrent intents from
// interleaving partial lines on the wire.
func (c *Client) send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if c.closed.Load() {
			return "", net.ErrClosed
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}
