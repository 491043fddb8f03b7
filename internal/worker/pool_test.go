package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool_InlineRunsSynchronously(t *testing.T) {
	p := New(Options{Logger: zerolog.Nop()})
	var ran bool
	if !p.Submit("inline", func(context.Context) error { ran = true; return nil }) {
		t.Fatalf("inline submit rejected")
	}
	if !ran {
		t.Fatalf("task did not run synchronously")
	}
	if s := p.Stats(); s.Submitted != 1 || s.Dropped != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestPool_RunsAllAndDrainsOnShutdown(t *testing.T) {
	p := New(Options{Workers: 3, Queue: 64, Logger: zerolog.Nop()})
	p.Start(context.Background())

	var n atomic.Int32
	for i := 0; i < 50; i++ {
		if !p.Submit("count", func(context.Context) error { n.Add(1); return nil }) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if n.Load() != 50 {
		t.Fatalf("ran %d tasks; want 50", n.Load())
	}
	if err := p.Shutdown(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("second shutdown err=%v", err)
	}
	if p.Submit("late", func(context.Context) error { return nil }) {
		t.Fatalf("submit after shutdown accepted")
	}
}

func TestPool_DropsWhenFull(t *testing.T) {
	p := New(Options{Workers: 1, Queue: 1, Logger: zerolog.Nop()})
	p.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	if !p.Submit("queued", func(context.Context) error { return nil }) {
		t.Fatalf("second task should fit the queue")
	}
	if p.Submit("overflow", func(context.Context) error { return nil }) {
		t.Fatalf("third task should be dropped")
	}
	close(release)
	_ = p.Shutdown(context.Background())

	if s := p.Stats(); s.Dropped != 1 || s.Submitted != 3 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestPool_FailuresAndPanicsAreContained(t *testing.T) {
	p := New(Options{Workers: 2, Logger: zerolog.Nop()})
	p.Start(context.Background())

	var wg sync.WaitGroup
	wg.Add(3)
	p.Submit("err", func(context.Context) error { defer wg.Done(); return errors.New("boom") })
	p.Submit("panic", func(context.Context) error { defer wg.Done(); panic("kaboom") })
	p.Submit("ok", func(context.Context) error { defer wg.Done(); return nil })
	wg.Wait()
	_ = p.Shutdown(context.Background())

	if s := p.Stats(); s.Failed != 2 {
		t.Fatalf("failed=%d; want 2", s.Failed)
	}
}

func TestPool_TaskTimeout(t *testing.T) {
	p := New(Options{Workers: 1, TaskTimeout: 20 * time.Millisecond, Logger: zerolog.Nop()})
	p.Start(context.Background())

	got := make(chan error, 1)
	p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	})
	select {
	case err := <-got:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("task context never expired")
	}
	_ = p.Shutdown(context.Background())
}
