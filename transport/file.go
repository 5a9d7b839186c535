package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/pktlog"
)

// FileConfig configures a FileTransport. Exactly one of Path, Reader or Dict
// should be set; Path takes precedence, then Reader, then Dict.
type FileConfig struct {
	Path string // packet-log file to replay

	Reader io.Reader // an already-open packet-log stream (e.g. os.Stdin)

	Dict map[string]string // dtm string -> packet text, replayed in dtm order

	// RealTime replays lines paced by the gap between their recorded dtm
	// stamps; when false (the default) lines are delivered as fast as
	// possible, suitable for bulk re-parsing/backtesting.
	RealTime bool
}

// FileTransport replays a previously captured packet log. It never accepts
// writes: WriteFrame always returns ErrReadOnly.
type FileTransport struct {
	base
	cfg    FileConfig
	cancel context.CancelFunc
}

// NewFileTransport builds a FileTransport from cfg; it does not open
// anything until Start.
func NewFileTransport(cfg FileConfig, logger *slog.Logger) *FileTransport {
	return &FileTransport{base: newBase(logger), cfg: cfg}
}

// WriteFrame always fails: replay sources are read-only.
func (t *FileTransport) WriteFrame(ctx context.Context, text string) error {
	return ErrReadOnly
}

// Start begins replaying lines in a background goroutine, delivering each
// through the registered receiver, and invokes the connection-lost callback
// at EOF or on first read error.
func (t *FileTransport) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	lines, closeSrc, err := t.openSource()
	if err != nil {
		cancel()
		return err
	}

	go t.replay(cctx, lines, closeSrc)
	return nil
}

// lineSource yields Lines in playback order; ok=false signals exhaustion.
type lineSource func() (pktlog.Line, bool, error)

func (t *FileTransport) openSource() (lineSource, func(), error) {
	switch {
	case t.cfg.Path != "":
		f, err := os.Open(t.cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: open packet log %s: %w", t.cfg.Path, err)
		}
		sc := pktlog.NewScanner(bufio.NewReader(f))
		return scannerSource(sc), func() { f.Close() }, nil

	case t.cfg.Reader != nil:
		sc := pktlog.NewScanner(t.cfg.Reader)
		return scannerSource(sc), func() {}, nil

	case t.cfg.Dict != nil:
		return dictSource(t.cfg.Dict), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("transport: file transport needs Path, Reader or Dict")
	}
}

func scannerSource(sc *pktlog.Scanner) lineSource {
	return func() (pktlog.Line, bool, error) {
		if !sc.Scan() {
			return pktlog.Line{}, false, sc.Err()
		}
		return sc.Line(), true, nil
	}
}

func dictSource(dict map[string]string) lineSource {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	i := 0
	return func() (pktlog.Line, bool, error) {
		if i >= len(keys) {
			return pktlog.Line{}, false, nil
		}
		k := keys[i]
		i++
		line, ok, err := pktlog.ParseLine(k + " " + dict[k])
		if err != nil || !ok {
			return pktlog.Line{}, true, err
		}
		return line, true, nil
	}
}

func (t *FileTransport) replay(ctx context.Context, next lineSource, closeSrc func()) {
	defer closeSrc()

	var prevDtm time.Time
	for {
		select {
		case <-ctx.Done():
			t.connectionLost(ctx.Err())
			return
		default:
		}

		line, ok, err := next()
		if !ok {
			t.connectionLost(err)
			return
		}

		if t.cfg.RealTime && !prevDtm.IsZero() {
			if gap := line.Dtm.Sub(prevDtm); gap > 0 {
				select {
				case <-ctx.Done():
					t.connectionLost(ctx.Err())
					return
				case <-time.After(gap):
				}
			}
		}
		prevDtm = line.Dtm

		if !t.reading {
			continue
		}
		pkt, err := frame.NewPacket(line.Dtm, t.hacks.applyInbound(line.Text))
		if err != nil {
			t.logger.Debug("dropping malformed logged line", "line", line.Text, "err", err)
			continue
		}
		t.deliver(pkt)
	}
}

// Close stops replay.
func (t *FileTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
