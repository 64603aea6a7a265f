package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func stringFactory(v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return v, nil }
}

func TestGetCreatesAndReuses(t *testing.T) {
	p := New[string](Config{Name: "test", MaxConnections: 4})
	defer p.Close()

	dials := 0
	factory := func(context.Context) (string, error) {
		dials++
		return "conn-a", nil
	}

	ctx := context.Background()
	c1, err := p.Get(ctx, "endpoint-a", factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := p.Get(ctx, "endpoint-a", factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c1 != "conn-a" || c2 != "conn-a" {
		t.Errorf("got %q, %q, want conn-a twice", c1, c2)
	}
	if dials != 1 {
		t.Errorf("factory invoked %d times, want 1", dials)
	}
}

func TestGetFactoryErrorIsClassified(t *testing.T) {
	p := New[string](Config{Name: "test"})
	defer p.Close()

	_, err := p.Get(context.Background(), "bad", func(context.Context) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	})

	var sdkErr *sdkerr.Error
	if !errors.As(err, &sdkErr) {
		t.Fatalf("error not classified: %v", err)
	}
	if sdkErr.Kind != sdkerr.KindNetwork {
		t.Errorf("Kind = %s, want network", sdkErr.Kind)
	}
	if p.Stats().TotalConnections != 0 {
		t.Error("failed dial must not leave an entry behind")
	}
}

func TestCapacityEvictsOldestByAge(t *testing.T) {
	clock := newFakeClock()
	p := New[string](Config{Name: "test", MaxConnections: 1}, WithClock[string](clock.Now))
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Get(ctx, "a", stringFactory("conn-a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := p.Get(ctx, "b", stringFactory("conn-b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := p.Stats()
	if stats.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d, want 1", stats.TotalConnections)
	}

	// "a" was evicted; asking for it again dials anew.
	dials := 0
	if _, err := p.Get(ctx, "a", func(context.Context) (string, error) {
		dials++
		return "conn-a2", nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dials != 1 {
		t.Error("evicted endpoint should require a fresh dial")
	}
}

func TestEvictionIsByCreationAgeNotRecency(t *testing.T) {
	clock := newFakeClock()
	p := New[string](Config{Name: "test", MaxConnections: 2}, WithClock[string](clock.Now))
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Get(ctx, "old", stringFactory("conn-old")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if _, err := p.Get(ctx, "young", stringFactory("conn-young")); err != nil {
		t.Fatal(err)
	}

	// Touch "old" so it is the most recently used. Age still wins.
	clock.Advance(time.Minute)
	if _, err := p.Get(ctx, "old", stringFactory("unused")); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Get(ctx, "new", stringFactory("conn-new")); err != nil {
		t.Fatal(err)
	}

	dials := 0
	redial := func(context.Context) (string, error) {
		dials++
		return "redial", nil
	}
	if _, err := p.Get(ctx, "young", redial); err != nil {
		t.Fatal(err)
	}
	if dials != 0 {
		t.Error("young connection should have survived the eviction")
	}
	if _, err := p.Get(ctx, "old", redial); err != nil {
		t.Fatal(err)
	}
	if dials != 1 {
		t.Error("oldest connection should have been evicted despite recent use")
	}
}

func TestCloserInvokedOnEviction(t *testing.T) {
	var closed []string
	p := New[string](Config{Name: "test", MaxConnections: 1},
		WithCloser[string](func(c string) { closed = append(closed, c) }))

	ctx := context.Background()
	if _, err := p.Get(ctx, "a", stringFactory("conn-a")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Get(ctx, "b", stringFactory("conn-b")); err != nil {
		t.Fatal(err)
	}

	if len(closed) != 1 || closed[0] != "conn-a" {
		t.Errorf("closed = %v, want [conn-a]", closed)
	}

	p.Close()
	if len(closed) != 2 {
		t.Errorf("Close should dispose the remaining connection, closed = %v", closed)
	}
}

func TestRecordRequestAndStats(t *testing.T) {
	clock := newFakeClock()
	p := New[string](Config{Name: "test", MaxConnections: 4}, WithClock[string](clock.Now))
	defer p.Close()

	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		if _, err := p.Get(ctx, key, stringFactory("conn-"+key)); err != nil {
			t.Fatal(err)
		}
	}

	p.RecordRequest("a", 100*time.Millisecond)
	p.RecordRequest("a", 300*time.Millisecond)
	p.RecordRequest("missing", time.Second) // evicted key, ignored

	stats := p.Stats()
	if stats.TotalConnections != 2 {
		t.Errorf("TotalConnections = %d, want 2", stats.TotalConnections)
	}
	if stats.ActiveConnections != 2 {
		t.Errorf("ActiveConnections = %d, want 2", stats.ActiveConnections)
	}
	if stats.AvgResponseTime != 200*time.Millisecond {
		t.Errorf("AvgResponseTime = %v, want 200ms", stats.AvgResponseTime)
	}

	es, ok := stats.Endpoints["a"]
	if !ok {
		t.Fatal("missing endpoint entry for a")
	}
	if es.RequestCount != 2 || es.AvgResponseTime != 200*time.Millisecond {
		t.Errorf("endpoint a: count/avg = %d/%v, want 2/200ms", es.RequestCount, es.AvgResponseTime)
	}
	if b := stats.Endpoints["b"]; b.RequestCount != 0 {
		t.Errorf("endpoint b: count = %d, want 0", b.RequestCount)
	}

	// Beyond the recency window both connections count as idle.
	clock.Advance(2 * time.Minute)
	stats = p.Stats()
	if stats.ActiveConnections != 0 || stats.IdleConnections != 2 {
		t.Errorf("active/idle = %d/%d, want 0/2", stats.ActiveConnections, stats.IdleConnections)
	}
}

func TestSweepRemovesIdleConnections(t *testing.T) {
	clock := newFakeClock()
	p := New[string](Config{
		Name:           "test",
		MaxConnections: 4,
		MaxIdleTime:    time.Minute,
		SweepInterval:  time.Hour, // driven manually
	}, WithClock[string](clock.Now))
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Get(ctx, "stale", stringFactory("conn-stale")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := p.Get(ctx, "fresh", stringFactory("conn-fresh")); err != nil {
		t.Fatal(err)
	}

	p.sweep()

	stats := p.Stats()
	if stats.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d after sweep, want 1", stats.TotalConnections)
	}

	dials := 0
	if _, err := p.Get(ctx, "fresh", func(context.Context) (string, error) {
		dials++
		return "redial", nil
	}); err != nil {
		t.Fatal(err)
	}
	if dials != 0 {
		t.Error("fresh connection should have survived the sweep")
	}
}

func TestGetHonorsContext(t *testing.T) {
	p := New[string](Config{Name: "test"})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Get(ctx, "a", stringFactory("conn-a"))
	var sdkErr *sdkerr.Error
	if !errors.As(err, &sdkErr) || sdkErr.Kind != sdkerr.KindTimeout {
		t.Errorf("err = %v, want timeout kind from cancelled context", err)
	}
}

func TestConcurrentGetSameKeyDialsOnce(t *testing.T) {
	p := New[string](Config{Name: "test", MaxConnections: 4})
	defer p.Close()

	var mu sync.Mutex
	dials := 0
	factory := func(context.Context) (string, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return "conn", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Get(context.Background(), "shared", factory); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// Concurrent misses may race the factory, but only one entry survives.
	if got := p.Stats().TotalConnections; got != 1 {
		t.Errorf("TotalConnections = %d, want 1", got)
	}
	if dials < 1 {
		t.Error("factory never invoked")
	}
}

func TestConcurrentGetDistinctKeys(t *testing.T) {
	p := New[string](Config{Name: "test", MaxConnections: 64})
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("endpoint-%d", i)
			if _, err := p.Get(context.Background(), key, stringFactory(key)); err != nil {
				t.Error(err)
			}
			p.RecordRequest(key, time.Millisecond)
		}(i)
	}
	wg.Wait()

	if got := p.Stats().TotalConnections; got != 32 {
		t.Errorf("TotalConnections = %d, want 32", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New[string](Config{Name: "test"})
	p.Close()
	p.Close()

	if got := p.Stats().TotalConnections; got != 0 {
		t.Errorf("TotalConnections = %d after Close, want 0", got)
	}
}
