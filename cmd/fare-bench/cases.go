// README: Bench cases: environment, fare API contract, quote storage and estimate load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// lastQuoteID is set by the estimate case and read by later cases.
	lastQuoteID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) estimateBody(distanceKm, durationMin float64) map[string]any {
	return map[string]any{
		"location_id":  r.cfg.LocationID,
		"vehicle_type": r.cfg.VehicleType,
		"distance_km":  distanceKm,
		"duration_min": durationMin,
	}
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	cancelBody := map[string]any{"location_id": r.cfg.LocationID, "vehicle_type": r.cfg.VehicleType}
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "dsn not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Env: pricing tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "dsn not set"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					if err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, t).Scan(&exists); err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table " + t}
					}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		httpCase("API: health", http.MethodGet, base+"/health", "", nil, http.StatusOK),
		httpCase("API: metrics", http.MethodGet, base+"/metrics", "", nil, http.StatusOK),
		{
			Name: "API: estimate returns quote",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, latency, err := r.do(ctx, http.MethodPost, base+"/api/fares/estimate", "", r.estimateBody(5, 12))
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if status != http.StatusCreated {
					return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
				}
				var out struct {
					QuoteID string `json:"quote_id"`
					Fare    struct {
						TotalRiderPrice string `json:"total_rider_price"`
					} `json:"fare"`
				}
				if err := json.Unmarshal(body, &out); err != nil || out.QuoteID == "" {
					return Result{Status: StatusFail, Latency: latency, Note: "missing quote_id"}
				}
				r.lastQuoteID = out.QuoteID
				return Result{Status: StatusPass, Latency: latency, Note: "total=" + out.Fare.TotalRiderPrice}
			},
		},
		{
			Name: "API: fetch stored quote",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.lastQuoteID == "" {
					return Result{Status: StatusSkip, Note: "no quote from estimate"}
				}
				status, _, latency, err := r.do(ctx, http.MethodGet, base+"/api/fares/quotes/"+r.lastQuoteID, "", nil)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return statusResult(status, latency, http.StatusOK)
			},
		},
		{
			Name: "Redis: quote key has TTL",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil || r.lastQuoteID == "" {
					return Result{Status: StatusSkip, Note: "redis or quote missing"}
				}
				ttl, err := r.redis.TTL(ctx, "fare:quote:"+r.lastQuoteID).Result()
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if ttl <= 0 {
					return Result{Status: StatusFail, Note: fmt.Sprintf("ttl=%s", ttl)}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("ttl=%s", ttl.Round(time.Second))}
			},
		},
		httpCase("API: unknown quote is 404", http.MethodGet, base+"/api/fares/quotes/does-not-exist", "", nil, http.StatusNotFound),
		httpCase("API: negative distance is 400", http.MethodPost, base+"/api/fares/estimate", "", r.estimateBody(-1, 0), http.StatusBadRequest),
		httpCase("API: unknown location is 404", http.MethodPost, base+"/api/fares/estimate", "",
			map[string]any{"location_id": "bench-unknown", "vehicle_type": r.cfg.VehicleType, "distance_km": 1}, http.StatusNotFound),
		httpCase("Auth: final without token", http.MethodPost, base+"/api/fares/final", "",
			map[string]any{"trip_id": "bench-trip", "location_id": r.cfg.LocationID, "vehicle_type": r.cfg.VehicleType}, http.StatusUnauthorized),
		httpCase("Auth: cancellation without token", http.MethodPost, base+"/api/fares/cancellation", "", cancelBody, http.StatusUnauthorized),
		tokenCase("Auth: cancellation with token", http.MethodPost, base+"/api/fares/cancellation", cancelBody, http.StatusOK),
		{
			Name: "Load: estimate throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/fares/estimate", r.estimateBody(8.5, 21))
			},
		},
	}
}

func (r *Runner) do(ctx context.Context, method, url, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, time.Since(start), err
}

func statusResult(status int, latency time.Duration, ok ...int) Result {
	note := fmt.Sprintf("status=%d", status)
	if slices.Contains(ok, status) {
		return Result{Status: StatusPass, Latency: latency, Note: note}
	}
	return Result{Status: StatusFail, Latency: latency, Note: note}
}

func httpCase(name, method, url, token string, body any, ok ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			status, _, latency, err := r.do(ctx, method, url, token, body)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			return statusResult(status, latency, ok...)
		},
	}
}

// tokenCase runs only when a bearer token is configured.
func tokenCase(name, method, url string, body any, ok ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.Token == "" {
				return Result{Status: StatusSkip, Note: "token not set"}
			}
			return httpCase(name, method, url, r.cfg.Token, body, ok...).Run(ctx, r)
		},
	}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	b, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			for time.Now().Before(end) && gctx.Err() == nil {
				req, err := http.NewRequestWithContext(gctx, http.MethodPost, url, bytes.NewReader(b))
				if err != nil {
					return err
				}
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					errCount.Add(1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode != http.StatusCreated {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("no successful requests, errors=%d", errCount.Load())}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	matches := createTableRe.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
