// Package pktlog reads and writes packet-log lines: the flat-file format a
// gateway appends one line per received packet to, and that the file/dict
// transport replays from.
//
// A line is:
//
//	<26-char dtm> <rssi?><frame>[ < parser-hint][ * evofw3-err_msg][ # comment]
//
// e.g. "2023-11-30 12:00:00.123456 000 RQ --- 18:000730 01:145038 --:------ 000A 002 0800 # 000A|RQ|01:145038|08"
package pktlog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

const dtmLayout = "2006-01-02 15:04:05.000000"

// Line is one parsed packet-log record.
type Line struct {
	Dtm     time.Time
	Text    string // the packet text (RSSI + frame), parser hints stripped
	ErrMsg  string // evofw3 "*"-prefixed error annotation, if any
	Comment string // trailing "#"-prefixed comment, if any
}

// ParseLine parses one raw packet-log line. Blank lines and lines whose
// first non-space character is "#" are treated as full-line comments and
// return ok=false with no error.
func ParseLine(raw string) (line Line, ok bool, err error) {
	trimmed := strings.TrimRight(raw, "\r\n")
	stripped := strings.TrimSpace(trimmed)
	if stripped == "" || strings.HasPrefix(stripped, "#") {
		return Line{}, false, nil
	}
	if len(trimmed) < len(dtmLayout)+1 {
		return Line{}, false, fmt.Errorf("pktlog: line too short: %q", raw)
	}

	dtm, err := time.Parse(dtmLayout, trimmed[:len(dtmLayout)])
	if err != nil {
		return Line{}, false, fmt.Errorf("pktlog: bad timestamp in %q: %w", raw, err)
	}

	rest := trimmed[len(dtmLayout):]
	rest = strings.TrimPrefix(rest, " ")

	fragment, comment, _ := strings.Cut(rest, "#")
	fragment, errMsg, _ := strings.Cut(fragment, "*")
	pktStr, _, _ := strings.Cut(fragment, "<") // discard any parser hints

	return Line{
		Dtm:     dtm,
		Text:    strings.TrimSpace(pktStr),
		ErrMsg:  strings.TrimSpace(errMsg),
		Comment: strings.TrimSpace(comment),
	}, true, nil
}

// FormatLine renders l back to its on-disk representation.
func FormatLine(l Line) string {
	var b strings.Builder
	b.WriteString(l.Dtm.Format(dtmLayout))
	b.WriteString(" ")
	b.WriteString(l.Text)
	if l.ErrMsg != "" {
		fmt.Fprintf(&b, " * %s", l.ErrMsg)
	}
	if l.Comment != "" {
		fmt.Fprintf(&b, " # %s", l.Comment)
	}
	return b.String()
}

// Scanner reads Lines from a packet-log file, skipping comments and blank
// lines; scanning stops at the first malformed line, whose error is then
// reported through Err.
type Scanner struct {
	sc  *bufio.Scanner
	cur Line
	err error
}

// NewScanner wraps r for sequential packet-log line reading.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{sc: bufio.NewScanner(r)}
}

// Scan advances to the next non-comment line, returning false at EOF or on
// the first error (inspect Err after Scan returns false).
func (s *Scanner) Scan() bool {
	for s.sc.Scan() {
		line, ok, err := ParseLine(s.sc.Text())
		if err != nil {
			s.err = err
			return false
		}
		if !ok {
			continue
		}
		s.cur = line
		return true
	}
	s.err = s.sc.Err()
	return false
}

// Line returns the most recently scanned Line.
func (s *Scanner) Line() Line { return s.cur }

// Err returns the first error encountered, if any.
func (s *Scanner) Err() error { return s.err }

// Writer appends packet-log lines to an underlying writer.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for sequential packet-log line writing.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteLine appends l, newline-terminated.
func (w *Writer) WriteLine(l Line) error {
	_, err := fmt.Fprintln(w.w, FormatLine(l))
	return err
}
