package cluster

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/anyks/awh-sub001/buffer"
)

// newTestWorker wires a workerProc to a real os.Pipe pair without spawning a
// child process, so Broadcast/Send's queue-staging path can be exercised
// directly against writeLoop.
func newTestWorker(t *testing.T, ctx context.Context, pid int) (*workerProc, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	wctx, cancel := context.WithCancel(ctx)
	wp := &workerProc{
		pid:     pid,
		toChild: w,
		sendQ:   buffer.NewQueue(sendQueueCapacity),
		ctx:     wctx,
		cancel:  cancel,
	}
	return wp, r
}

func TestBroadcastStagesOnSendQueueAndWriteLoopDrainsIt(t *testing.T) {
	m := New(1, Config{}, nil, "", nil, Events{})
	defer m.cancel()

	w1, r1 := newTestWorker(t, m.ctx, 101)
	w2, r2 := newTestWorker(t, m.ctx, 102)
	defer r1.Close()
	defer r2.Close()

	m.mu.Lock()
	m.workers[w1.pid] = w1
	m.workers[w2.pid] = w2
	m.mu.Unlock()

	go m.writeLoop(w1)
	go m.writeLoop(w2)

	payload := []byte("broadcast payload")
	m.Broadcast(payload)

	for _, r := range []*os.File{r1, r2} {
		_ = r.SetReadDeadline(time.Now().Add(2 * time.Second))
		got, err := readFrame(r)
		if err != nil {
			t.Fatalf("readFrame: %v", err)
		}
		if string(got) != string(payload) {
			t.Fatalf("got %q, want %q", got, payload)
		}
	}
}

func TestSendTargetsOneWorkerOnly(t *testing.T) {
	m := New(1, Config{}, nil, "", nil, Events{})
	defer m.cancel()

	w1, r1 := newTestWorker(t, m.ctx, 201)
	defer r1.Close()

	m.mu.Lock()
	m.workers[w1.pid] = w1
	m.mu.Unlock()

	go m.writeLoop(w1)

	if err := m.Send(201, []byte("direct")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := m.Send(999, []byte("nope")); err == nil {
		t.Fatal("expected error for unknown pid")
	}

	_ = r1.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := readFrame(r1)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(got) != "direct" {
		t.Fatalf("got %q, want %q", got, "direct")
	}
}
