package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ramses-go/ramses-go/frame"
)

func TestFileTransportReplaysDictInOrder(t *testing.T) {
	dict := map[string]string{
		"2026-07-29 12:00:00.000000": " I --- 01:145038 --:------ 01:145038 000C 006 000014012345",
		"2026-07-29 12:00:01.000000": "RQ --- 18:000730 01:145038 --:------ 1F09 001 00",
	}

	ft := NewFileTransport(FileConfig{Dict: dict}, nil)

	var mu sync.Mutex
	var got []frame.Packet
	done := make(chan struct{})
	ft.SetReceiver(func(p frame.Packet) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	ft.SetConnectionLost(func(err error) { close(done) })

	if err := ft.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(got))
	}
	if got[0].Frame.Code != "000C" || got[1].Frame.Code != "1F09" {
		t.Fatalf("packets delivered out of dtm order: %v, %v", got[0].Frame.Code, got[1].Frame.Code)
	}
}

func TestFileTransportWriteFrameIsReadOnly(t *testing.T) {
	ft := NewFileTransport(FileConfig{Dict: map[string]string{}}, nil)
	if err := ft.WriteFrame(context.Background(), " I --- 01:145038 --:------ 01:145038 000C 006 000014012345"); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}
