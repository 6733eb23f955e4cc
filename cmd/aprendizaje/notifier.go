package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/session"
)

var _ session.Notifier = (*terminalNotifier)(nil)

// terminalNotifier is the session prompt for an interactive terminal. Input
// is read line by line in the background so a stale prompt can be abandoned
// without blocking on stdin.
type terminalNotifier struct {
	lines <-chan string
	out   io.Writer
}

func newTerminalNotifier(in io.Reader, out io.Writer) *terminalNotifier {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &terminalNotifier{lines: lines, out: out}
}

func (n *terminalNotifier) ConfirmExtend(ctx context.Context, remaining time.Duration) bool {
	fmt.Fprintf(n.out, "\nYour session expires in %s. Extend it? [y/N] ", remaining.Round(time.Second))

	select {
	case <-ctx.Done():
		fmt.Fprintln(n.out, "\n(prompt closed)")
		return false
	case line, ok := <-n.lines:
		return ok && isYes(line)
	}
}

func (n *terminalNotifier) Expired() {
	fmt.Fprintln(n.out, "Your session has expired.")
}

func (n *terminalNotifier) Extended() {
	fmt.Fprintln(n.out, "Session extended ✓")
}

func (n *terminalNotifier) RedirectToLogin() {
	fmt.Fprintln(n.out, "Signed out. Run 'aprendizaje login' to start a new session.")
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "s", "si", "sí":
		return true
	}
	return false
}

// quietNotifier only reports expiry; one-shot commands never prompt.
type quietNotifier struct {
	out io.Writer
}

func (quietNotifier) ConfirmExtend(context.Context, time.Duration) bool { return false }
func (n quietNotifier) Expired()                                        { fmt.Fprintln(n.out, "Your session has expired.") }
func (quietNotifier) Extended()                                         {}
func (quietNotifier) RedirectToLogin()                                  {}
