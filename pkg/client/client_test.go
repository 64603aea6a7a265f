package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/veyra-labs/ledgerkit/internal/testutil"
	"github.com/veyra-labs/ledgerkit/pkg/accounts"
	"github.com/veyra-labs/ledgerkit/pkg/retry"
	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

// testConfig keeps retries and delays tight so failing tests do not hang.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = retry.Options{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2,
	}
	cfg.Breaker = retry.BreakerConfig{Threshold: 100, ResetTimeout: time.Minute}
	return cfg
}

func stringDialer(ctx context.Context, endpoint string) (string, error) {
	return "conn-" + endpoint, nil
}

func TestNewRequiresDialer(t *testing.T) {
	if _, err := New[string](testConfig(), nil); err == nil {
		t.Error("nil dialer should be rejected")
	}
}

func TestFetchResourceValidation(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.FetchResource(context.Background(), Request{Type: "agent"}, nil)
	var sdkErr *sdkerr.Error
	if !errors.As(err, &sdkErr) || sdkErr.Kind != sdkerr.KindValidation {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestFetchResourceCachesResult(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fetches := 0
	fetch := func(ctx context.Context, conn string) ([]byte, error) {
		fetches++
		return []byte(`{"agent": "a1"}`), nil
	}

	req := Request{Type: "agent", ID: "a1"}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := c.FetchResource(ctx, req, fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(v) != `{"agent": "a1"}` {
			t.Errorf("v = %s", v)
		}
	}

	if fetches != 1 {
		t.Errorf("fetch invoked %d times, want 1 (cached)", fetches)
	}

	stats := c.Stats()
	if stats.Cache.Hits != 2 {
		t.Errorf("cache hits = %d, want 2", stats.Cache.Hits)
	}
}

func TestFetchResourceRetriesTransientFailures(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	attempts := 0
	fetch := func(ctx context.Context, conn string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return []byte("ok"), nil
	}

	v, err := c.FetchResource(context.Background(), Request{Type: "agent", ID: "a2"}, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v) != "ok" {
		t.Errorf("v = %s, want ok", v)
	}
	if attempts != 3 {
		t.Errorf("fetch invoked %d times, want 3", attempts)
	}
}

func TestFetchResourceNonRetryableFailsOnce(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	attempts := 0
	fetch := func(ctx context.Context, conn string) ([]byte, error) {
		attempts++
		return nil, errors.New("account does not exist")
	}

	_, err = c.FetchResource(context.Background(), Request{Type: "agent", ID: "missing"}, fetch)
	var sdkErr *sdkerr.Error
	if !errors.As(err, &sdkErr) || sdkErr.Kind != sdkerr.KindAccountNotFound {
		t.Errorf("err = %v, want account-not-found", err)
	}
	if attempts != 1 {
		t.Errorf("fetch invoked %d times, want 1", attempts)
	}
}

func TestBreakerOpensAndRejectsWithoutFetching(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = retry.BreakerConfig{Threshold: 2, ResetTimeout: time.Minute}

	c, err := New(cfg, stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	failing := func(ctx context.Context, conn string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}

	// Distinct IDs so the cache never short-circuits the transport.
	for i := 0; i < 2; i++ {
		req := Request{Type: "agent", ID: fmt.Sprintf("f%d", i)}
		if _, err := c.FetchResource(ctx, req, failing); err == nil {
			t.Fatal("expected failure")
		}
	}

	if got := c.Stats().Breaker; got != "open" {
		t.Fatalf("breaker state = %s, want open", got)
	}

	fetched := false
	_, err = c.FetchResource(ctx, Request{Type: "agent", ID: "f9"}, func(ctx context.Context, conn string) ([]byte, error) {
		fetched = true
		return []byte("ok"), nil
	})
	if fetched {
		t.Error("fetch must not run while the breaker is open")
	}
	if !errors.Is(err, retry.ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen in chain", err)
	}
}

func TestFetchBulkBatches(t *testing.T) {
	size, err := accounts.Size(accounts.TypeEscrow)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	// Budget for 4 records per call after the safety margin.
	cfg.MaxResponseBytes = size * 5

	c, err := New(cfg, stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var calls [][2]int
	fetch := func(ctx context.Context, conn string, offset, limit int) ([][]byte, error) {
		calls = append(calls, [2]int{offset, limit})
		batch := make([][]byte, limit)
		for i := range batch {
			batch[i] = []byte(fmt.Sprintf("escrow-%d", offset+i))
		}
		return batch, nil
	}

	records, err := c.FetchBulk(context.Background(), BulkRequest{Type: accounts.TypeEscrow, Count: 10}, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 10 {
		t.Errorf("len(records) = %d, want 10", len(records))
	}
	want := [][2]int{{0, 4}, {4, 4}, {8, 2}}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
	if string(records[9]) != "escrow-9" {
		t.Errorf("records[9] = %s", records[9])
	}
}

func TestFetchBulkUnknownType(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.FetchBulk(context.Background(), BulkRequest{Type: "ghost", Count: 10}, nil)
	var sdkErr *sdkerr.Error
	if !errors.As(err, &sdkErr) || sdkErr.Kind != sdkerr.KindValidation {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fetches := 0
	fetch := func(ctx context.Context, conn string) ([]byte, error) {
		fetches++
		return []byte("v"), nil
	}

	ctx := context.Background()
	req := Request{Type: "channel", ID: "c1"}
	if _, err := c.FetchResource(ctx, req, fetch); err != nil {
		t.Fatal(err)
	}

	if n := c.Invalidate("channel"); n != 1 {
		t.Errorf("Invalidate removed %d entries, want 1", n)
	}

	if _, err := c.FetchResource(ctx, req, fetch); err != nil {
		t.Fatal(err)
	}
	if fetches != 2 {
		t.Errorf("fetch invoked %d times, want 2 after invalidation", fetches)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c, err := New(testConfig(), stringDialer)
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		if err := c.HealthCheck(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("dial failure", func(t *testing.T) {
		c, err := New(testConfig(), func(ctx context.Context, endpoint string) (string, error) {
			return "", errors.New("connection refused")
		})
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()

		err = c.HealthCheck(context.Background())
		var sdkErr *sdkerr.Error
		if !errors.As(err, &sdkErr) || sdkErr.Kind != sdkerr.KindNetwork {
			t.Errorf("err = %v, want network error", err)
		}
	})
}

func TestOperationStats(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	fetch := func(ctx context.Context, conn string) ([]byte, error) { return []byte("v"), nil }
	for i := 0; i < 3; i++ {
		req := Request{Type: "agent", ID: fmt.Sprintf("s%d", i)}
		if _, err := c.FetchResource(ctx, req, fetch); err != nil {
			t.Fatal(err)
		}
	}

	s := c.OperationStats("fetch_agent", 0)
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %f, want 1.0", s.SuccessRate)
	}
}

func TestConcurrentFetches(t *testing.T) {
	c, err := New(testConfig(), stringDialer)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := Request{Type: "message", ID: fmt.Sprintf("m%d", i%4)}
			_, err := c.FetchResource(context.Background(), req, func(ctx context.Context, conn string) ([]byte, error) {
				return []byte("v"), nil
			})
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
}

// TestFetchOverHTTP drives the full pipeline against a mock ledger server
// with an HTTP transport.
func TestFetchOverHTTP(t *testing.T) {
	mock := testutil.NewMockLedger()
	defer mock.Close()

	mock.FailThenSucceed("/v1/records/agent/a1", 2, http.StatusInternalServerError, `{"agent": "a1"}`)

	c, err := New(testConfig(), func(ctx context.Context, endpoint string) (*http.Client, error) {
		return &http.Client{Timeout: 5 * time.Second}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fetch := func(ctx context.Context, conn *http.Client) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, mock.URL()+"/v1/records/agent/a1", nil)
		if err != nil {
			return nil, err
		}
		resp, err := conn.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("rpc error: ledger returned status %d: %s", resp.StatusCode, body)
		}
		return body, nil
	}

	v, err := c.FetchResource(context.Background(), Request{Type: "agent", ID: "a1"}, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v) != `{"agent": "a1"}` {
		t.Errorf("v = %s", v)
	}
	if got := mock.PathCount("/v1/records/agent/a1"); got != 3 {
		t.Errorf("server saw %d requests, want 3 (two failures retried)", got)
	}

	// Second read is served from cache without touching the server.
	if _, err := c.FetchResource(context.Background(), Request{Type: "agent", ID: "a1"}, fetch); err != nil {
		t.Fatal(err)
	}
	if got := mock.PathCount("/v1/records/agent/a1"); got != 3 {
		t.Errorf("server saw %d requests after cached read, want 3", got)
	}
}
