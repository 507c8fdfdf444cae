// Package source reads and writes security events as JSON lines, one event
// per line, for offline replay.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

const maxLineSize = 1 << 20

// JSONLSource is an engine.EventSource over a JSON lines file or reader.
// Blank lines and lines starting with # are skipped; malformed lines are
// logged and counted.
type JSONLSource struct {
	path   string
	reader io.Reader
	logger *logging.Logger

	skipped atomic.Int64
	err     atomic.Pointer[error]
}

// NewFileSource reads path when Events is called.
func NewFileSource(path string, logger *logging.Logger) *JSONLSource {
	return &JSONLSource{path: path, logger: sourceLogger(logger)}
}

// NewReaderSource reads r once.
func NewReaderSource(r io.Reader, logger *logging.Logger) *JSONLSource {
	return &JSONLSource{reader: r, logger: sourceLogger(logger)}
}

func sourceLogger(l *logging.Logger) *logging.Logger {
	if l == nil {
		l = logging.Default()
	}
	return l.Component("jsonl-source")
}

func (s *JSONLSource) Events(ctx context.Context) (<-chan models.SecurityEvent, error) {
	r := s.reader
	var f *os.File
	if s.path != "" {
		var err error
		f, err = os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event file: %w", err)
		}
		r = f
	}
	if r == nil {
		return nil, errors.New("jsonl source has no input")
	}

	out := make(chan models.SecurityEvent)
	go func() {
		defer close(out)
		if f != nil {
			defer f.Close()
		}
		if err := s.scan(ctx, r, out); err != nil {
			s.err.Store(&err)
			s.logger.Error("event replay stopped", logging.Error(err))
		}
	}()
	return out, nil
}

func (s *JSONLSource) scan(ctx context.Context, r io.Reader, out chan<- models.SecurityEvent) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var ev models.SecurityEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			s.skipped.Add(1)
			s.logger.Warn("skipping malformed event",
				"line", line,
				logging.Error(err))
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read events at line %d: %w", line+1, err)
	}
	return nil
}

// Skipped is the number of malformed lines seen so far.
func (s *JSONLSource) Skipped() int64 {
	return s.skipped.Load()
}

// Err returns the read error that ended the stream early, if any.
func (s *JSONLSource) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Write encodes events to w as JSON lines.
func Write(w io.Writer, events []models.SecurityEvent) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range events {
		if err := enc.Encode(events[i]); err != nil {
			return fmt.Errorf("encode event %d: %w", i, err)
		}
	}
	return bw.Flush()
}
