package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

// startScriptedRelay runs a wire-level relay stand-in for one connection.
func startScriptedRelay(t *testing.T, script func(conn net.Conn, r *bufio.Reader)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		script(conn, bufio.NewReader(conn))
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func readRequest(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Errorf("scripted relay read: %v", err)
		return ""
	}
	return strings.TrimRight(line, "\n")
}

func TestConnectSeedsPresence(t *testing.T) {
	addr := startScriptedRelay(t, func(conn net.Conn, r *bufio.Reader) {
		if got := readRequest(t, r); got != "CONNECT:alice" {
			t.Errorf("unexpected handshake line %q", got)
		}
		io.WriteString(conn, "CONNECT_OK:bob,carol\n")
		r.ReadString('\n') // hold the stream open until the client closes
	})

	c, err := Dial(addr, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "  alice "); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.Username() != "alice" {
		t.Fatalf("unexpected username %q", c.Username())
	}
	users := c.OnlineUsers()
	if len(users) != 3 || users[0] != "alice" || users[1] != "bob" || users[2] != "carol" {
		t.Fatalf("unexpected presence %v", users)
	}
}

func TestConnectRejected(t *testing.T) {
	addr := startScriptedRelay(t, func(conn net.Conn, r *bufio.Reader) {
		readRequest(t, r)
		io.WriteString(conn, "CONNECT_ERROR:username already taken\n")
		conn.Close()
	})

	c, err := Dial(addr, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = c.Connect(ctx, "alice")
	var rejected *HandshakeRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected HandshakeRejectedError, got %v", err)
	}
	if rejected.Reason != "username already taken" {
		t.Fatalf("unexpected reason %q", rejected.Reason)
	}
}

func TestConnectValidatesUsernameBeforeWriting(t *testing.T) {
	received := make(chan string, 1)
	addr := startScriptedRelay(t, func(conn net.Conn, r *bufio.Reader) {
		line, err := r.ReadString('\n')
		if err == nil {
			received <- line
		}
		conn.Close()
	})

	c, err := Dial(addr, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "no:colons"); err == nil {
		t.Fatal("expected validation error")
	}
	c.Close()
	select {
	case line := <-received:
		t.Fatalf("invalid username reached the wire: %q", line)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenAppliesBroadcastsAndSkipsGarbage(t *testing.T) {
	addr := startScriptedRelay(t, func(conn net.Conn, r *bufio.Reader) {
		readRequest(t, r)
		io.WriteString(conn, "CONNECT_OK:\n")
		io.WriteString(conn, "ADD:1:buy:milk:false:alice\n")
		io.WriteString(conn, "???\n")
		io.WriteString(conn, "UPDATE:1:buy:milk:true:bob\n")
		io.WriteString(conn, "USER_JOINED:bob\n")
		conn.Close()
	})

	changes := make(chan struct{}, 16)
	c, err := Dial(addr, WithLogger(quietLogger()), WithChangeHandler(func() {
		changes <- struct{}{}
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Listen() }()

	// Handshake seed + three applied events; the garbage line produces no
	// change notification.
	for i := 0; i < 4; i++ {
		select {
		case <-changes:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for change %d", i)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return after relay EOF")
	}

	tasks := c.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Description != "buy:milk" || !tasks[0].Completed || tasks[0].LastModifiedBy != "bob" {
		t.Fatalf("unexpected task %+v", tasks[0])
	}
	users := c.OnlineUsers()
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("unexpected presence %v", users)
	}
}

func TestIntentsEncodeAsSingleLines(t *testing.T) {
	lines := make(chan string, 3)
	addr := startScriptedRelay(t, func(conn net.Conn, r *bufio.Reader) {
		readRequest(t, r)
		io.WriteString(conn, "CONNECT_OK:\n")
		for i := 0; i < 3; i++ {
			lines <- readRequest(t, r)
		}
		conn.Close()
	})

	c, err := Dial(addr, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.Add("buy milk"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Update(1, "buy: milk", true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []string{"ADD:buy milk", "UPDATE:1:buy: milk:true", "DELETE:1"}
	for i, expected := range want {
		select {
		case got := <-lines:
			if got != expected {
				t.Fatalf("intent %d: expected %q, got %q", i, expected, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for intent %d", i)
		}
	}
}
