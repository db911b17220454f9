// Command simulate drives the API the way two devices of one clinic would:
// writers create records while a viewer keeps its screens fresh through the
// realtime feed. It reports write latency and how long each change takes to
// reach the viewer.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xclinic/dental-clinic/internal/api"
	"github.com/xclinic/dental-clinic/internal/client"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/logging"
	"github.com/xclinic/dental-clinic/internal/odontogram"
	"github.com/xclinic/dental-clinic/internal/realtime"
)

type SimConfig struct {
	APIBaseURL   string
	Email        string
	Password     string
	Duration     time.Duration
	Workers      int
	Pause        time.Duration
	PropagateMax time.Duration
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else {
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
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	CreatePatient     OperationMetrics
	CreateAppointment OperationMetrics
	CreatePayment     OperationMetrics
	CreateRecord      OperationMetrics
	Propagation       OperationMetrics
}

// viewer is the device that only watches.
type viewer struct {
	session  *client.SessionProvider
	feed     *client.RealtimeFeed
	b        *realtime.Broadcaster
	today    *client.Loader[time.Time, []api.AppointmentResponse]
	patients *client.Loader[string, []api.PatientResponse]
	payments *client.Loader[time.Time, []api.PaymentResponse]
}

type Simulator struct {
	config  SimConfig
	log     zerolog.Logger
	writer  *client.Client
	viewer  *viewer
	metrics Metrics

	mu       sync.RWMutex
	patients []uuid.UUID
}

func main() {
	log := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Str("api", cfg.APIBaseURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Msg("simulate starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &Simulator{config: cfg, log: log}
	if err := sim.setup(ctx); err != nil {
		log.Fatal().Err(err).Msg("setup failed")
	}
	defer sim.teardown()

	sim.Run(ctx)
	sim.PrintReport()
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Email:        getEnv("SIM_EMAIL", "admin@clinica.local"),
		Password:     getEnv("SIM_PASSWORD", "admin123"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 2),
		Pause:        getDuration("SIM_PAUSE", 200*time.Millisecond),
		PropagateMax: getDuration("SIM_PROPAGATE_MAX", 3*time.Second),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers < 1 {
		return errors.New("SIM_WORKERS must be at least 1")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be positive")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return errors.New("SIM_EMAIL and SIM_PASSWORD are required")
	}
	return nil
}

func (s *Simulator) setup(ctx context.Context) error {
	s.writer = client.New(s.config.APIBaseURL, nil)
	writerSession := client.NewSessionProvider(s.writer, &client.MemorySessionStore{}, s.log)
	if err := writerSession.SignIn(ctx, s.config.Email, s.config.Password); err != nil {
		return fmt.Errorf("writer sign in: %w", err)
	}

	vc := client.New(s.config.APIBaseURL, nil)
	v := &viewer{session: client.NewSessionProvider(vc, &client.MemorySessionStore{}, s.log)}
	v.feed = client.NewRealtimeFeed(vc.BaseURL(), vc.AccessToken, s.log)
	v.b = realtime.NewBroadcaster(v.feed, s.log)
	client.BindBroadcaster(ctx, v.session, v.b, s.log)

	if err := v.session.SignIn(ctx, s.config.Email, s.config.Password); err != nil {
		return fmt.Errorf("viewer sign in: %w", err)
	}
	clinicID := v.session.Session().User.ID
	if v.b.ClinicID() != clinicID {
		return errors.New("refresh broadcaster did not start for the viewer's clinic")
	}
	go v.session.AutoRefresh(ctx, time.Minute)

	alert := func(err error) { s.log.Warn().Err(err).Msg("viewer screen failed to load") }
	v.today = client.NewLoader("today", time.Now(), vc.AppointmentsForDay, s.log).
		OnError(alert).Watch(v.b, realtime.TableAppointments)
	v.patients = client.NewLoader("patients", "", vc.Patients, s.log).
		OnError(alert).Watch(v.b, realtime.TablePatients)
	v.payments = client.NewLoader("payments", time.Now(), func(ctx context.Context, day time.Time) ([]api.PaymentResponse, error) {
		return vc.Payments(ctx, day.AddDate(0, -1, 0), day)
	}, s.log).OnError(alert).Watch(v.b, realtime.TablePayments)

	v.today.Load(ctx)
	v.payments.Load(ctx)
	for _, p := range v.patients.Load(ctx).Data {
		s.patients = append(s.patients, p.ID)
	}
	s.viewer = v

	s.log.Info().Int("patients", len(s.patients)).Str("clinic_id", clinicID.String()).Msg("viewer ready")
	return nil
}

func (s *Simulator) teardown() {
	if s.viewer == nil {
		return
	}
	for _, l := range []interface{ Close() }{s.viewer.today, s.viewer.patients, s.viewer.payments} {
		l.Close()
	}
	s.viewer.b.Stop()
	if err := s.viewer.feed.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close realtime feed")
	}
	s.viewer.session.Close()
}

func (s *Simulator) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.log.Info().Uint64("refresh_trigger", s.viewer.b.RefreshTrigger()).Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.Pause):
		}

		patientID, ok := s.randomPatient(rng)
		r := rng.Float64()
		switch {
		case !ok || r < 0.2:
			s.doCreatePatient(ctx)
		case r < 0.55:
			s.doCreateAppointment(ctx, rng, patientID)
		case r < 0.8:
			s.doCreatePayment(ctx, rng, patientID)
		default:
			s.doCreateRecord(ctx, rng, patientID)
		}
	}
}

func (s *Simulator) randomPatient(rng *rand.Rand) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.patients) == 0 {
		return uuid.Nil, false
	}
	return s.patients[rng.Intn(len(s.patients))], true
}

// timed runs a write and then waits for the viewer's refresh counter to move
// past its value from before the write.
func (s *Simulator) timed(ctx context.Context, om *OperationMetrics, op string, write func() error) {
	before := s.viewer.b.RefreshTrigger()
	start := time.Now()
	err := write()
	om.Record(time.Since(start), err == nil)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Str("op", op).Msg("write failed")
		}
		return
	}

	deadline := time.Now().Add(s.config.PropagateMax)
	for time.Now().Before(deadline) {
		if s.viewer.b.RefreshTrigger() > before {
			s.metrics.Propagation.Record(time.Since(start), true)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.metrics.Propagation.Record(s.config.PropagateMax, false)
}

func (s *Simulator) doCreatePatient(ctx context.Context) {
	phone := gofakeit.Numerify("8###-####")
	s.timed(ctx, &s.metrics.CreatePatient, "create_patient", func() error {
		p, err := s.writer.CreatePatient(ctx, api.PatientRequest{FullName: gofakeit.Name(), Phone: &phone})
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.patients = append(s.patients, p.ID)
		s.mu.Unlock()
		return nil
	})
}

func (s *Simulator) doCreateAppointment(ctx context.Context, rng *rand.Rand, patientID uuid.UUID) {
	day := time.Now().AddDate(0, 0, rng.Intn(7))
	at := time.Date(day.Year(), day.Month(), day.Day(), 8+rng.Intn(10), 30*rng.Intn(2), 0, 0, time.UTC)
	reason := "Revisión"
	s.timed(ctx, &s.metrics.CreateAppointment, "create_appointment", func() error {
		_, err := s.writer.CreateAppointment(ctx, api.AppointmentRequest{
			PatientID: patientID,
			Date:      clinic.FormatWallClock(at),
			Duration:  clinic.DefaultAppointmentDuration,
			Reason:    &reason,
		})
		return err
	})
}

func (s *Simulator) doCreatePayment(ctx context.Context, rng *rand.Rand, patientID uuid.UUID) {
	s.timed(ctx, &s.metrics.CreatePayment, "create_payment", func() error {
		_, err := s.writer.CreatePayment(ctx, api.PaymentRequest{
			PatientID:     patientID,
			Amount:        decimal.NewFromInt(int64(100 + rng.Intn(4900))),
			Currency:      string(clinic.CurrencyNIO),
			PaymentMethod: string(clinic.MethodCash),
		})
		return err
	})
}

func (s *Simulator) doCreateRecord(ctx context.Context, rng *rand.Rand, patientID uuid.UUID) {
	conditions := odontogram.Conditions()
	tooth := 10*(1+rng.Intn(4)) + 1 + rng.Intn(8)
	s.timed(ctx, &s.metrics.CreateRecord, "create_dental_record", func() error {
		_, err := s.writer.CreateDentalRecords(ctx, api.DentalRecordRequest{
			PatientID: patientID,
			Teeth:     []int{tooth},
			Condition: string(conditions[rng.Intn(len(conditions))]),
		})
		return err
	})
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Refresh trigger: %d\n", s.viewer.b.RefreshTrigger())
	fmt.Printf("Viewer screens: %d appointments today, %d patients, %d payments\n",
		len(s.viewer.today.State().Data), len(s.viewer.patients.State().Data), len(s.viewer.payments.State().Data))
	fmt.Println()

	printOperationReport("Create patient", &s.metrics.CreatePatient)
	printOperationReport("Create appointment", &s.metrics.CreateAppointment)
	printOperationReport("Create payment", &s.metrics.CreatePayment)
	printOperationReport("Create dental record", &s.metrics.CreateRecord)
	printOperationReport("Change reached viewer", &s.metrics.Propagation)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if failed > 0 {
		fmt.Printf("  Failed: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, max)
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
