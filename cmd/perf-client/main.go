package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"
)

// PerfConfig is read from PERF_* environment variables
type PerfConfig struct {
	BaseURL         string        `env:"BASE_URL,default=http://localhost:8080"`
	Phone           string        `env:"PHONE,default=13800138000"`
	Password        string        `env:"PASSWORD,default=123456"`
	CompanyID       int64         `env:"COMPANY_ID"` // first listed company when zero
	Coupons         int           `env:"COUPONS,default=2000"`
	AttemptsPerCode int           `env:"ATTEMPTS_PER_CODE,default=3"`
	Workers         int           `env:"WORKERS,default=50"`
	RPS             int           `env:"RPS,default=500"`
	Timeout         time.Duration `env:"TIMEOUT,default=30s"`
}

// Validate rejects settings the run cannot work with
func (c *PerfConfig) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("PERF_WORKERS must be at least 1")
	case c.RPS < 1:
		return fmt.Errorf("PERF_RPS must be at least 1")
	case c.AttemptsPerCode < 1:
		return fmt.Errorf("PERF_ATTEMPTS_PER_CODE must be at least 1")
	case c.Coupons < 1:
		return fmt.Errorf("PERF_COUPONS must be at least 1")
	case c.Timeout <= 0:
		return fmt.Errorf("PERF_TIMEOUT must be positive")
	}
	return nil
}

// PerfResult gathers aggregated metrics for the test run.
// LatencySum & P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ConflictCount int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiClient struct {
	http    *http.Client
	baseURL string
	token   string
}

func main() {
	var cfg PerfConfig
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("PERF_", envconfig.OsLookuper()),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 4,
		MaxIdleConnsPerHost: cfg.Workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &apiClient{
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
	}

	if err := client.login(cfg.Phone, cfg.Password); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	companyID := cfg.CompanyID
	if companyID == 0 {
		id, err := client.firstCompany()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to pick a company: %v\n", err)
			os.Exit(1)
		}
		companyID = id
	}

	baseline, err := client.recordTotal(companyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read records: %v\n", err)
		os.Exit(1)
	}

	codes, err := client.generate(companyID, cfg.Coupons)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate coupons: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==========================================")
	fmt.Println("coupon-verify load test")
	fmt.Println("==========================================")
	fmt.Printf("company id        : %d\n", companyID)
	fmt.Printf("coupons           : %d\n", len(codes))
	fmt.Printf("attempts per code : %d\n", cfg.AttemptsPerCode)
	fmt.Printf("target RPS        : %d\n", cfg.RPS)
	fmt.Printf("workers           : %d\n", cfg.Workers)
	fmt.Println("==========================================")

	// Every code is attempted several times so the workers race on it
	jobs := make([]string, 0, len(codes)*cfg.AttemptsPerCode)
	for _, code := range codes {
		for i := 0; i < cfg.AttemptsPerCode; i++ {
			jobs = append(jobs, code)
		}
	}
	rand.Shuffle(len(jobs), func(i, j int) { jobs[i], jobs[j] = jobs[j], jobs[i] })

	burst := cfg.RPS / cfg.Workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	queue := make(chan string, len(jobs))
	for _, code := range jobs {
		queue <- code
	}
	close(queue)

	var result PerfResult
	latencyChan := make(chan time.Duration, 4096)
	p95Done := make(chan struct{})
	go func() {
		trackP95(latencyChan, &result)
		close(p95Done)
	}()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range queue {
				if err := limiter.Wait(context.Background()); err != nil {
					return
				}
				client.redeemOnce(code, companyID, &result, latencyChan)
			}
		}()
	}
	wg.Wait()
	close(latencyChan)
	<-p95Done
	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Println("results")
	fmt.Println("==========================================")
	fmt.Printf("duration          : %.2fs\n", totalDur.Seconds())
	fmt.Printf("total requests    : %d\n", result.TotalRequests)
	fmt.Printf("redeemed          : %d\n", result.SuccessCount)
	fmt.Printf("already used      : %d\n", result.ConflictCount)
	fmt.Printf("errors            : %d\n", result.ErrorCount)

	var avgLatency time.Duration
	if result.TotalRequests > 0 {
		avgLatency = time.Duration(result.LatencySum / result.TotalRequests)
	}
	fmt.Printf("actual RPS        : %.2f\n", float64(result.TotalRequests)/totalDur.Seconds())
	fmt.Printf("avg latency       : %v\n", avgLatency)
	fmt.Printf("P95 latency       : %v\n", time.Duration(result.P95Latency))

	fmt.Println("==========================================")
	fmt.Println("consistency check")
	fmt.Println("==========================================")
	if err := client.verifyConsistency(companyID, baseline, int64(len(codes)), &result); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK: every code was redeemed exactly once")
}

func (c *apiClient) call(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) login(phone, password string) error {
	var data struct {
		Token string `json:"token"`
	}
	_, err := c.call(context.Background(), http.MethodPost, "/api/auth/login",
		map[string]string{"phone": phone, "password": password}, &data)
	if err != nil {
		return err
	}
	c.token = data.Token
	return nil
}

func (c *apiClient) firstCompany() (int64, error) {
	var companies []struct {
		ID int64 `json:"id"`
	}
	if _, err := c.call(context.Background(), http.MethodGet, "/api/coupon/companies", nil, &companies); err != nil {
		return 0, err
	}
	if len(companies) == 0 {
		return 0, fmt.Errorf("no active companies")
	}
	return companies[0].ID, nil
}

// generate creates n codes in batches of at most 100
func (c *apiClient) generate(companyID int64, n int) ([]string, error) {
	codes := make([]string, 0, n)
	for len(codes) < n {
		batch := n - len(codes)
		if batch > 100 {
			batch = 100
		}
		var data struct {
			Codes []string `json:"codes"`
		}
		_, err := c.call(context.Background(), http.MethodPost, "/api/coupon/batch-add",
			map[string]interface{}{"companyId": companyID, "count": batch}, &data)
		if err != nil {
			return nil, err
		}
		codes = append(codes, data.Codes...)
	}
	return codes, nil
}

// redeemOnce performs a single redemption and collects metrics.
// 409 is an expected outcome for the repeated attempts.
func (c *apiClient) redeemOnce(code string, companyID int64, result *PerfResult, latencyChan chan<- time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	status, err := c.call(ctx, http.MethodPost, "/api/coupon/redeem",
		map[string]interface{}{"code": code, "companyId": companyID}, nil)
	latency := time.Since(start)
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())

	switch {
	case err == nil:
		atomic.AddInt64(&result.SuccessCount, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&result.ConflictCount, 1)
	default:
		atomic.AddInt64(&result.ErrorCount, 1)
	}

	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 keeps a bounded sample of latencies and refreshes the P95 estimate
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)
	seen := 0

	update := func() {
		if len(buf) == 0 {
			return
		}
		sorted := append([]int64(nil), buf...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		idx := int(float64(len(sorted)) * 0.95)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		atomic.StoreInt64(&result.P95Latency, sorted[idx])
	}

	for lat := range latencies {
		seen++
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if j := rand.Intn(seen); j < size {
			buf[j] = lat.Nanoseconds()
		}
		if seen%100 == 0 {
			update()
		}
	}
	update()
}

func (c *apiClient) recordTotal(companyID int64) (int64, error) {
	var page struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	path := "/api/coupon/records?limit=1&companyId=" + strconv.FormatInt(companyID, 10)
	if _, err := c.call(context.Background(), http.MethodGet, path, nil, &page); err != nil {
		return 0, err
	}
	return page.Pagination.Total, nil
}

// verifyConsistency checks that the service recorded one redemption per code
func (c *apiClient) verifyConsistency(companyID, baseline, codes int64, result *PerfResult) error {
	total, err := c.recordTotal(companyID)
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	recorded := total - baseline

	fmt.Printf("codes             : %d\n", codes)
	fmt.Printf("redeemed (client) : %d\n", result.SuccessCount)
	fmt.Printf("recorded (server) : %d\n", recorded)

	if result.ErrorCount > 0 {
		return fmt.Errorf("%d requests failed unexpectedly", result.ErrorCount)
	}
	if result.SuccessCount != codes {
		return fmt.Errorf("redeemed %d codes, expected %d", result.SuccessCount, codes)
	}
	if recorded != result.SuccessCount {
		return fmt.Errorf("server recorded %d redemptions, client saw %d", recorded, result.SuccessCount)
	}
	return nil
}
