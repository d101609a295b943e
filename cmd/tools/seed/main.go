// Command seed provisions a local database with a demo challenge, sessions,
// and synthetic price candles for exercising the simulation daemon.
package main

import (
	"flag"
	"log"
	"strings"
	"time"

	"stockquest/internal/storage"
	"stockquest/pkg/conn"
)

func main() {
	connString := flag.String("conn", "postgres://postgres@localhost:5432/stockquest?sslmode=disable", "PostgreSQL connection string")
	title := flag.String("title", "March 2020 Crash Replay", "Challenge title")
	speed := flag.Int("speed", 30, "Simulation speed factor")
	start := flag.String("start", "2020-02-01", "Challenge period start (YYYY-MM-DD)")
	end := flag.String("end", "2020-04-30", "Challenge period end (YYYY-MM-DD)")
	instruments := flag.String("instruments", "AAPL,MSFT,TSLA", "Comma-separated instrument keys")
	sessionCount := flag.Int("sessions", 3, "Number of active sessions to create")
	migrate := flag.Bool("migrate", true, "Run schema migration before seeding")
	flag.Parse()

	periodStart, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	periodEnd, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}
	if !periodEnd.After(periodStart) {
		log.Fatalf("-end must be after -start")
	}

	client, err := conn.New(conn.Option{ConnString: *connString})
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer client.Close()

	if *migrate {
		if err := storage.AutoMigrate(client.DB()); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}

	spec := storage.SeedSpec{
		Title:       *title,
		SpeedFactor: *speed,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Instruments: splitKeys(*instruments),
		Sessions:    *sessionCount,
	}
	if err := storage.SeedDemo(client.DB(), spec); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Printf("seeded challenge %q with %d sessions over %s..%s", *title, *sessionCount, *start, *end)
}

func splitKeys(raw string) []string {
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
