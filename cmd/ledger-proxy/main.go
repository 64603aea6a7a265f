// ledger-proxy exposes cached, retried ledger record reads over HTTP. It
// fronts a single ledger endpoint with the full runtime: local cache with
// an optional shared Redis tier, retries behind a circuit breaker, and
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/veyra-labs/ledgerkit/pkg/client"
	"github.com/veyra-labs/ledgerkit/pkg/logging"
	"github.com/veyra-labs/ledgerkit/pkg/retry"
	"github.com/veyra-labs/ledgerkit/pkg/sdkerr"
)

func main() {
	port := getEnv("PORT", "8080")
	ledgerURL := getEnv("LEDGER_URL", "http://localhost:8899")
	redisURL := os.Getenv("REDIS_URL")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
		Output: os.Stderr,
	})

	cfg := client.DefaultConfig()
	cfg.Retry = retry.FastRead()

	var redisClient *redis.Client
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis", redisURL).Msg("Connected to Redis")
		cfg.Redis = redisClient
		cfg.EnableQuota = true
	}

	ledgerClient, err := client.New(cfg, func(ctx context.Context, endpoint string) (*http.Client, error) {
		return &http.Client{Timeout: 30 * time.Second}, nil
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create ledger client")
	}
	defer ledgerClient.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient, ledgerClient))
	mux.HandleFunc("/records/", recordHandler(ledgerClient, ledgerURL))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("ledger", ledgerURL).
		Msg("Starting ledger proxy")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports readiness: Redis reachable (when configured) and
// the ledger endpoint dialable.
func readyHandler(redisClient *redis.Client, ledgerClient *client.Client[*http.Client]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if err := ledgerClient.HealthCheck(ctx); err != nil {
			http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// recordHandler serves GET /records/{type}/{id} through the runtime.
func recordHandler(ledgerClient *client.Client[*http.Client], ledgerURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/records/"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			http.Error(w, "expected /records/{type}/{id}", http.StatusBadRequest)
			return
		}
		recordType, id := parts[0], parts[1]

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		data, err := ledgerClient.FetchResource(ctx, client.Request{
			Type: recordType,
			ID:   id,
		}, func(ctx context.Context, conn *http.Client) ([]byte, error) {
			return fetchRecord(ctx, conn, ledgerURL, recordType, id)
		})
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// fetchRecord reads one record from the upstream ledger endpoint.
func fetchRecord(ctx context.Context, conn *http.Client, ledgerURL, recordType, id string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/records/%s/%s", ledgerURL, recordType, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("account %s/%s does not exist", recordType, id)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limit exceeded, retry after %ss", resp.Header.Get("Retry-After"))
	default:
		return nil, fmt.Errorf("rpc error: ledger returned status %d: %s", resp.StatusCode, body)
	}
}

// writeError maps a classified error onto an HTTP status and the short user
// message for its kind.
func writeError(w http.ResponseWriter, err error) {
	var sdkErr *sdkerr.Error
	if !errors.As(err, &sdkErr) {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	status := http.StatusBadGateway
	switch sdkErr.Kind {
	case sdkerr.KindAccountNotFound:
		status = http.StatusNotFound
	case sdkerr.KindValidation:
		status = http.StatusBadRequest
	case sdkerr.KindRateLimit:
		status = http.StatusTooManyRequests
	case sdkerr.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	http.Error(w, sdkErr.UserMessage(), status)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
