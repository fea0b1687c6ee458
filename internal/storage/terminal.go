package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/milkywaybrain/exchangeloader/internal/config"
)

// Terminal is for displaying data on Terminal.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	timeFormat string
}

var _terminal *Terminal

// TerminalTimestamp is used as a format to display only the time.
const TerminalTimestamp = "15:04:05.999"

// NewTerminal creates a Terminal display writing to out.
func NewTerminal(out io.Writer, cfg *config.Terminal) *Terminal {
	t := &Terminal{out: out, timeFormat: TerminalTimestamp}
	if cfg != nil && cfg.TimeFormat != "" {
		t.timeFormat = cfg.TimeFormat
	}
	return t
}

// InitTerminal initializes Terminal display.
// Output writer is always os.Stdout except in case of testing where file will be set as output Terminal.
func InitTerminal(out io.Writer, cfg *config.Terminal) *Terminal {
	if _terminal == nil {
		_terminal = NewTerminal(out, cfg)
		register(config.TERMINAL, _terminal)
	}
	return _terminal
}

// CommitSnapshot outputs the rebuilt option list to Terminal.
func (t *Terminal) CommitSnapshot(_ context.Context, s Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(
		t.out,
		"%-15s%-15s%5d  %-50s%20s\n\n",
		"Options",
		s.Widget,
		len(s.Exchanges),
		strings.Join(s.Exchanges, ","),
		s.Timestamp.Local().Format(t.timeFormat),
	)
	return err
}
