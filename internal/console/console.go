// Package console provides a line-oriented command console over a serial
// port, for controlling the heater from a directly attached terminal when
// the network is down.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/abreis/heater-control/internal/command"
	"github.com/abreis/heater-control/internal/logic"
	"github.com/abreis/heater-control/internal/memlog"
	"github.com/abreis/heater-control/internal/state"
	"github.com/abreis/heater-control/internal/status"
)

const prompt = "> "

const helpText = `set <temp> [auto|manual|off]
    change the target temperature and mode
status
    show the controller state
manual <on|off|0..100>
    set the manual duty (switches to manual mode)
log [clear]
    show or clear recent log records
help
    show this text`

// Console reads commands from a port and writes immediate responses.
// The port is opened lazily and reopened with backoff after errors.
type Console struct {
	store *state.Store
	log   *memlog.Log

	// open returns a fresh port. Injectable for tests.
	open  func() (io.ReadWriteCloser, error)
	retry time.Duration
}

// New creates a Console using open to acquire its port.
func New(store *state.Store, log *memlog.Log, open func() (io.ReadWriteCloser, error)) *Console {
	return &Console{
		store: store,
		log:   log,
		open:  open,
		retry: 5 * time.Second,
	}
}

// Run serves the console until ctx is cancelled. Port errors are logged and
// followed by a reconnect attempt after a backoff. checkin, if non-nil, is
// called after every served line to report liveness.
func (c *Console) Run(ctx context.Context, checkin func()) {
	for ctx.Err() == nil {
		port, err := c.open()
		if err != nil {
			c.log.Warnf("console: open port: %v", err)
			c.sleep(ctx, c.retry)
			continue
		}

		if err := c.serve(ctx, port, checkin); err != nil {
			c.log.Warnf("console: %v", err)
		}
		port.Close()
		c.sleep(ctx, c.retry)
	}
}

func (c *Console) serve(ctx context.Context, port io.ReadWriteCloser, checkin func()) error {
	// Cancellation closes the port, unblocking the pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	if err := writeLine(port, "heater-control console, 'help' for commands"); err != nil {
		return err
	}
	if _, err := io.WriteString(port, prompt); err != nil {
		return err
	}

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		response := c.Execute(strings.TrimSpace(scanner.Text()))
		if response != "" {
			if err := writeLine(port, response); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(port, prompt); err != nil {
			return err
		}
		if checkin != nil {
			checkin()
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read port: %w", err)
	}
	return nil
}

// Execute runs one command line and returns the response text. An empty line
// yields an empty response.
func (c *Console) Execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "help":
		return helpText

	case "status":
		return strings.TrimRight(status.FormatText(c.store.Snapshot()), "\n")

	case "set":
		return c.execSet(fields[1:])

	case "manual":
		if len(fields) != 2 {
			return "usage: manual <on|off|0..100>"
		}
		if err := command.ApplyManual(c.store, fields[1]); err != nil {
			return fmt.Sprintf("rejected: %v", err)
		}
		return "manual duty set"

	case "log":
		return c.execLog(fields[1:])
	}

	return fmt.Sprintf("unknown command %q, 'help' for commands", fields[0])
}

func (c *Console) execSet(args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return "usage: set <temp> [auto|manual|off]"
	}

	target, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Sprintf("rejected: bad temperature %q", args[0])
	}
	mode := string(logic.ModeAuto)
	if len(args) == 2 {
		mode = args[1]
	}

	req := command.SetpointRequest{Target: target, Mode: mode}
	if err := req.Apply(c.store); err != nil {
		return fmt.Sprintf("rejected: %v", err)
	}

	snap := c.store.Snapshot()
	return fmt.Sprintf("setpoint %s mode %s (v%d)",
		snap.Setpoint.Target, snap.Setpoint.Mode, snap.Setpoint.Version)
}

func (c *Console) execLog(args []string) string {
	switch {
	case len(args) == 0:
		if dump := strings.TrimRight(c.log.Dump(), "\n"); dump != "" {
			return dump
		}
		return "log empty"
	case len(args) == 1 && args[0] == "clear":
		c.log.Clear()
		return "log cleared"
	}
	return "usage: log [clear]"
}

func (c *Console) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// writeLine writes text with CRLF line endings, as serial terminals expect.
func writeLine(w io.Writer, text string) error {
	text = strings.ReplaceAll(text, "\n", "\r\n")
	_, err := io.WriteString(w, text+"\r\n")
	return err
}
