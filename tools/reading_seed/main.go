package main

import (
	"context"
	"database/sql"
	"flag"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	telemetryapp "meter-reader/internal/telemetry/application"
	telemetry "meter-reader/internal/telemetry/domain"
	"meter-reader/internal/telemetry/adapters/generator"
	telemetrypostgres "meter-reader/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn           string
	customerStart int
	customerCount int
	startDate     string
	days          int
	interval      time.Duration
	batchSize     int
	seed          int64
}

// steppingClock hands out timestamps one interval apart.
type steppingClock struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.interval)
	return now
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.customerCount <= 0 {
		log.Fatal("customer-count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	if cfg.interval <= 0 {
		log.Fatal("interval must be > 0")
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	pipeline, err := telemetryapp.NewPipeline(telemetrypostgres.NewReadingRepository(db), log.New(io.Discard, "", 0))
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	ctx := context.Background()
	end := start.AddDate(0, 0, cfg.days)
	perCustomer := int(end.Sub(start) / cfg.interval)

	var accepted, rejected, failed int
	for i := 0; i < cfg.customerCount; i++ {
		customerID := int32(cfg.customerStart + i)
		clock := &steppingClock{next: start, interval: cfg.interval}
		gen := generator.New(generator.WithSeed(cfg.seed+int64(customerID)), generator.WithClock(clock.Now))

		for produced := 0; produced < perCustomer; {
			n := cfg.batchSize
			if remaining := perCustomer - produced; remaining < n {
				n = remaining
			}
			batch := telemetry.ReadingBatch{Outcome: telemetry.StatusSuccess, Notes: "seed"}
			for j := 0; j < n; j++ {
				r, err := gen.Generate(ctx, customerID)
				if err != nil {
					log.Fatalf("generate: %v", err)
				}
				batch.Readings = append(batch.Readings, r)
			}
			produced += n

			switch res := pipeline.Submit(ctx, batch); res.Kind {
			case telemetryapp.ResultAccepted:
				accepted += n
			case telemetryapp.ResultRejected:
				rejected += n
			default:
				failed += n
				if res.Err != nil {
					logger.Printf("seed customer=%d error: %v", customerID, res.Err)
				}
			}
		}
		logger.Printf("seeded customer=%d readings=%d", customerID, perCustomer)
	}

	logger.Printf("seed done: accepted=%d rejected=%d failed=%d", accepted, rejected, failed)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.IntVar(&cfg.customerStart, "customer-start", envOrInt("CUSTOMER_START", 100), "first customer id")
	flag.IntVar(&cfg.customerCount, "customer-count", envOrInt("CUSTOMER_COUNT", 10), "number of customers to seed")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD or RFC3339)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 7), "number of days to seed")
	flag.DurationVar(&cfg.interval, "interval", time.Hour, "time between readings")
	flag.IntVar(&cfg.batchSize, "batch-size", envOrInt("BATCH_SIZE", 5), "readings per submitted batch")
	flag.Int64Var(&cfg.seed, "seed", 1, "random seed")
	flag.Parse()
	if cfg.batchSize <= 0 {
		cfg.batchSize = 5
	}
	return cfg
}

func parseStartDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC().AddDate(0, 0, -7).Truncate(24 * time.Hour), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
