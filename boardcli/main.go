// Command boardcli is a minimal terminal client for the task board relay.
// It is view glue only: every command is sent to the relay, and the list
// printed by ls reflects exclusively what the relay has broadcast back.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/client"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: boardcli <username> [server-addr]")
		os.Exit(2)
	}
	username := os.Args[1]
	addr := "127.0.0.1:8080"
	if len(os.Args) > 2 {
		addr = os.Args[2]
	} else if v := os.Getenv("BOARD_SERVER"); v != "" {
		addr = v
	}

	c, err := client.Dial(addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = c.Connect(ctx, username)
	cancel()
	if err != nil {
		var rejected *client.HandshakeRejectedError
		if errors.As(err, &rejected) {
			log.Fatalf("relay refused the connection: %s", rejected.Reason)
		}
		log.Fatalf("connect: %v", err)
	}
	fmt.Printf("connected to %s as %s\n", addr, c.Username())

	listenErr := make(chan error, 1)
	go func() { listenErr <- c.Listen() }()

	stdin := bufio.NewScanner(os.Stdin)
	prompt := func() { fmt.Print("> ") }
	prompt()
	for stdin.Scan() {
		select {
		case err := <-listenErr:
			if err != nil {
				log.Fatalf("%v", err)
			}
			fmt.Println("relay closed the connection")
			return
		default:
		}
		if err := run(c, stdin.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			fmt.Println(err)
		}
		prompt()
	}
}

var errQuit = errors.New("quit")

func run(c *client.Client, input string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	switch cmd {
	case "":
		return nil
	case "quit", "exit":
		return errQuit
	case "ls":
		for _, task := range c.Tasks() {
			mark := " "
			if task.Completed {
				mark = "x"
			}
			fmt.Printf("[%s] %d  %s  (%s)\n", mark, task.ID, task.Description, task.LastModifiedBy)
		}
		return nil
	case "users":
		fmt.Println(strings.Join(c.OnlineUsers(), ", "))
		return nil
	case "add":
		if strings.TrimSpace(rest) == "" {
			return errors.New("usage: add <description>")
		}
		return c.Add(rest)
	case "done", "reopen":
		id, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return fmt.Errorf("usage: %s <id>", cmd)
		}
		for _, task := range c.Tasks() {
			if task.ID == id {
				return c.Update(id, task.Description, cmd == "done")
			}
		}
		return fmt.Errorf("no task %d", id)
	case "edit":
		idStr, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
		id, err := strconv.Atoi(idStr)
		if !ok || err != nil || strings.TrimSpace(text) == "" {
			return errors.New("usage: edit <id> <description>")
		}
		for _, task := range c.Tasks() {
			if task.ID == id {
				return c.Update(id, text, task.Completed)
			}
		}
		return fmt.Errorf("no task %d", id)
	case "rm":
		id, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return errors.New("usage: rm <id>")
		}
		return c.Delete(id)
	}
	return fmt.Errorf("unknown command %q (add, done, reopen, edit, rm, ls, users, quit)", cmd)
}
