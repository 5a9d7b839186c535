package index

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndex() *Index {
	idx := &Index{
		byHdr:  make(map[frame.Header]*Message),
		clock:  time.Now,
		stopCh: make(chan struct{}),
	}
	idx.logger = discardLogger()
	return idx
}

func TestAddReplacesByHeader(t *testing.T) {
	idx := newTestIndex()
	defer idx.Stop()

	m1 := Message{Hdr: "1F09|RQ|18:000730", Dtm: time.Now()}
	m2 := Message{Hdr: "1F09|RQ|18:000730", Dtm: time.Now().Add(time.Second)}

	idx.Add(m1)
	replaced := idx.Add(m2)

	if replaced == nil || replaced.Dtm != m1.Dtm {
		t.Fatalf("expected m1 to be replaced, got %+v", replaced)
	}

	got := idx.Get(ByHdr("1F09|RQ|18:000730"))
	if len(got) != 1 || got[0].Dtm != m2.Dtm {
		t.Fatalf("expected exactly m2 indexed, got %+v", got)
	}
}

func TestHousekeepingExpiresOldMessages(t *testing.T) {
	idx := newTestIndex()
	defer idx.Stop()

	now := time.Now()
	idx.clock = func() time.Time { return now }

	idx.Add(Message{Hdr: "OLD", Dtm: now.Add(-25 * time.Hour)})
	idx.Add(Message{Hdr: "NEW", Dtm: now.Add(-1 * time.Hour)})

	idx.sweep()

	if idx.Contains(ByHdr("OLD")) {
		t.Error("expected OLD message to be expired")
	}
	if !idx.Contains(ByHdr("NEW")) {
		t.Error("expected NEW message to be retained")
	}
}

func TestGetReplyCodes(t *testing.T) {
	idx := newTestIndex()
	defer idx.Stop()

	idx.Add(Message{Hdr: "0005|RP|01:145038|1", Verb: frame.VerbReply, Src: "01:145038", Code: "0005"})
	idx.Add(Message{Hdr: "000C|RP|01:145038|2", Verb: frame.VerbReply, Src: "01:145038", Code: "000C"})
	idx.Add(Message{Hdr: "2309|I|01:145038|3", Verb: frame.VerbInfo, Src: "01:145038", Code: "2309"})

	codes := idx.GetReplyCodes("01:145038")
	if len(codes) != 2 {
		t.Fatalf("expected 2 reply codes, got %v", codes)
	}
}
