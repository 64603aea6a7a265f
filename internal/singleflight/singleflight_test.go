package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoReturnsResult(t *testing.T) {
	g := New()

	v, err, shared := g.Do("key", func() (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("v = %v, want 42", v)
	}
	if shared {
		t.Error("single caller should not be marked shared")
	}
}

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	g := New()
	var calls int32
	release := make(chan struct{})

	const waiters = 10
	var wg sync.WaitGroup
	results := make([]int, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err, _ := g.Do("key", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 7, nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = v.(int)
		}(i)
	}

	// Let all goroutines reach Do before releasing the owner.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
	for i, r := range results {
		if r != 7 {
			t.Errorf("results[%d] = %d, want 7", i, r)
		}
	}
}

func TestDoSharesError(t *testing.T) {
	g := New()
	wantErr := errors.New("fetch failed")

	_, err, _ := g.Do("key", func() (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestDoForgetsCompletedKeys(t *testing.T) {
	g := New()
	var calls int32

	fn := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	g.Do("key", fn)
	g.Do("key", fn)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fn called %d times across sequential calls, want 2", got)
	}
}
