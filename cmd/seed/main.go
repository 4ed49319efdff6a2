package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/appointment"
	"github.com/hackgods/appointment-notifications/internal/auth"
	"github.com/hackgods/appointment-notifications/internal/config"
	"github.com/hackgods/appointment-notifications/internal/db"
	"github.com/hackgods/appointment-notifications/internal/logging"
	redisclient "github.com/hackgods/appointment-notifications/internal/redis"
)

// Seed books fake appointments through the service, so every row also
// produces the events and notifications a real booking would.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresMaxConns,
		MinConns: cfg.PostgresMinConns,
	})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	repo := appointment.NewPgRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	rdb := redisclient.NewClient(redisclient.Options{
		Addr:       cfg.RedisAddr,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
		ClientName: "seed",
	})
	defer rdb.Close()
	if err := redisclient.Ping(ctx, rdb); err != nil {
		logger.Warn("redis unreachable, seeding without events", zap.Error(err))
	}

	svc := appointment.NewService(repo, redisclient.NewPublisher(rdb, cfg.EventChannel), logger)

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	counts, err := seedAppointments(ctx, svc, faker, seedOptions{
		Doctors:  getInt("SEED_DOCTORS", 10),
		Patients: getInt("SEED_PATIENTS", 50),
		Bookings: getInt("SEED_BOOKINGS", 200),
	})
	if err != nil {
		logger.Fatal("seed appointments", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("booked", counts.booked),
		zap.Int("conflicts", counts.conflicts),
		zap.Int("approved", counts.approved),
		zap.Int("cancelled", counts.cancelled),
	)
}

type seedOptions struct {
	Doctors  int
	Patients int
	Bookings int
}

type seedCounts struct {
	booked, conflicts, approved, cancelled int
}

func seedAppointments(ctx context.Context, svc *appointment.Service, faker *gofakeit.Faker, opts seedOptions) (seedCounts, error) {
	var counts seedCounts
	if opts.Doctors <= 0 || opts.Patients <= 0 {
		return counts, errors.New("SEED_DOCTORS and SEED_PATIENTS must be positive")
	}

	// Half-hour slots across the next two weeks of working hours
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	for i := 0; i < opts.Bookings; i++ {
		patient := auth.Principal{ID: int64(1000 + faker.Number(1, opts.Patients)), Role: auth.RolePatient}
		doctor := auth.Principal{ID: int64(faker.Number(1, opts.Doctors)), Role: auth.RoleDoctor}
		slot := day.
			Add(time.Duration(faker.Number(0, 13)) * 24 * time.Hour).
			Add(time.Duration(faker.Number(9*2, 17*2-1)) * 30 * time.Minute)

		doctorID := doctor.ID
		appt, err := svc.CreateAppointment(ctx, patient, &doctorID, slot)
		if errors.Is(err, appointment.ErrConflict) {
			counts.conflicts++
			continue
		}
		if err != nil {
			return counts, err
		}
		counts.booked++

		switch faker.Number(0, 3) {
		case 0:
			if _, err := svc.ApproveAppointment(ctx, doctor, appt.ID); err != nil {
				return counts, err
			}
			counts.approved++
		case 1:
			if _, err := svc.CancelAppointment(ctx, patient, appt.ID); err != nil {
				return counts, err
			}
			counts.cancelled++
		}
	}

	return counts, nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
