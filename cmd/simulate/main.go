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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/auth"
	"github.com/hackgods/appointment-notifications/internal/config"
	"github.com/hackgods/appointment-notifications/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ApproveRatio float64
	ReadRatio    float64
	Patients     int
	Doctors      int
	Slots        int
	JWTSecret    string
}

// DataPool holds the synthetic callers and the appointments booked so far.
// Slots are deliberately few so workers race for the same (doctor, slot) pairs.
type DataPool struct {
	Patients     []string // tokens
	Doctors      []string // tokens, index+1 is the doctor id
	Slots        []time.Time
	mu           sync.RWMutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Metrics struct {
	Booking OperationMetrics
	Approve OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	logger, err := logging.New(os.Getenv("LOG_LEVEL"), "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Int("doctors", cfg.Doctors),
		zap.Int("slots", cfg.Slots),
	)

	pool, err := buildDataPool(cfg)
	if err != nil {
		logger.Fatal("build data pool", zap.Error(err))
	}

	sim := &Simulator{
		config: cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "devsecret"
	}
	// Shared defaults come from the service config when it loads
	if base, err := config.Load(); err == nil {
		secret = base.JWTSecret
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:4001"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ApproveRatio: getFloat("SIM_APPROVE_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		Patients:     getInt("SIM_PATIENTS", 200),
		Doctors:      getInt("SIM_DOCTORS", 5),
		Slots:        getInt("SIM_SLOTS", 20),
		JWTSecret:    secret,
	}

	total := cfg.BookingRatio + cfg.ApproveRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ApproveRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 || cfg.Doctors <= 0 || cfg.Slots <= 0 {
		return fmt.Errorf("SIM_PATIENTS, SIM_DOCTORS and SIM_SLOTS must be > 0")
	}
	return nil
}

func buildDataPool(cfg SimConfig) (*DataPool, error) {
	pool := &DataPool{}

	for i := 0; i < cfg.Patients; i++ {
		tok, err := auth.IssueToken(cfg.JWTSecret, auth.Principal{ID: int64(10_000 + i), Role: auth.RolePatient}, time.Hour)
		if err != nil {
			return nil, err
		}
		pool.Patients = append(pool.Patients, tok)
	}
	for i := 0; i < cfg.Doctors; i++ {
		tok, err := auth.IssueToken(cfg.JWTSecret, auth.Principal{ID: int64(i + 1), Role: auth.RoleDoctor}, time.Hour)
		if err != nil {
			return nil, err
		}
		pool.Doctors = append(pool.Doctors, tok)
	}

	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	for i := 0; i < cfg.Slots; i++ {
		pool.Slots = append(pool.Slots, start.Add(time.Duration(i)*30*time.Minute))
	}
	return pool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ApproveRatio:
			s.doApprove(ctx, rng)
		default:
			s.doList(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := int64(rng.Intn(len(s.pool.Doctors)) + 1)
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	token := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]any{
		"doctor_id": doctorID,
		"timeslot":  slot.Format(time.RFC3339),
	})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments", token, body)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var appt struct {
			ID int64 `json:"id"`
		}
		if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID > 0 {
			s.pool.AddAppointment(appt.ID)
		}
		s.metrics.Booking.Record(latency, true, false)
	case http.StatusConflict:
		s.metrics.Booking.Record(latency, false, true)
	default:
		s.metrics.Booking.Record(latency, false, false)
	}
}

// doApprove picks a random doctor, so 403 (bound to someone else) is expected
// and counted alongside conflicts.
func (s *Simulator) doApprove(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	token := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/appointments/%d/approve", id), token, nil)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Approve.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	s.metrics.Approve.Record(latency,
		resp.StatusCode == http.StatusOK,
		resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusConflict,
	)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	token := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	if rng.Intn(2) == 0 {
		token = s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/appointments", token, nil)
	latency := time.Since(start)
	if err != nil {
		s.metrics.List.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()

	s.metrics.List.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended pairs: %d doctors x %d slots\n\n", s.config.Doctors, s.config.Slots)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Approve", &s.metrics.Approve)
	printOperationReport("List", &s.metrics.List)

	// Each (doctor, slot) pair can be won at most once while it stays active
	if booked := atomic.LoadInt64(&s.metrics.Booking.Success); booked > int64(s.config.Doctors*s.config.Slots) {
		fmt.Printf("WARNING: %d bookings succeeded for only %d pairs\n", booked, s.config.Doctors*s.config.Slots)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
