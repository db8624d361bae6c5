// Package memlog keeps a bounded in-memory log of recent records, so the
// console and HTTP front-ends can show history on a device with no
// persistent storage. Records are also mirrored to the standard logger.
// Storage is budgeted in bytes of message text; the oldest records are
// evicted to make room.
package memlog

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Level is a record severity.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERRO"
)

// Record is one stored log entry.
type Record struct {
	At    time.Time
	Level Level
	Text  string
}

func (r Record) String() string {
	return fmt.Sprintf("[%s] %s: %s", r.At.UTC().Format(time.RFC3339), r.Level, r.Text)
}

// Log is a fixed-budget in-memory record store. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	records []Record
	used    int // bytes of stored text
	budget  int
	now     func() time.Time
}

const discardMsg = "log discarded: too large for storage"

// New creates a Log storing at most budget bytes of message text.
func New(budget int) *Log {
	if budget < len(discardMsg) {
		budget = len(discardMsg)
	}
	return &Log{budget: budget, now: time.Now}
}

// Infof records an informational message.
func (l *Log) Infof(format string, args ...any) {
	l.add(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf records a warning.
func (l *Log) Warnf(format string, args ...any) {
	l.add(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf records an error.
func (l *Log) Errorf(format string, args ...any) {
	l.add(LevelError, fmt.Sprintf(format, args...))
}

func (l *Log) add(level Level, text string) {
	log.Printf("%s: %s", strings.ToLower(string(level)), text)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(text) > l.budget {
		text = discardMsg
		level = LevelWarn
	}
	// Evict oldest records until the new one fits.
	for l.budget-l.used < len(text) {
		l.used -= len(l.records[0].Text)
		l.records = l.records[1:]
	}
	l.used += len(text)
	l.records = append(l.records, Record{At: l.now(), Level: level, Text: text})
}

// Records returns a copy of the stored records, newest first.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	for i, r := range l.records {
		out[len(out)-1-i] = r
	}
	return out
}

// Clear discards all stored records.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	l.used = 0
	l.mu.Unlock()
}

// Dump renders the stored records, newest first, one per line.
func (l *Log) Dump() string {
	var b strings.Builder
	for _, r := range l.Records() {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}
