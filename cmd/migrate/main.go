package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/catalog"
	catalogdb "ms-reservation/internal/catalog/db"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/logger"
)

func demoVehicles() []catalog.NewVehicle {
	seats := func(rows string, perRow int) []string {
		var out []string
		for _, row := range rows {
			for i := 1; i <= perRow; i++ {
				out = append(out, fmt.Sprintf("%c%d", row, i))
			}
		}
		return out
	}
	return []catalog.NewVehicle{
		{
			Name: "Intercity Express", Number: "NB-1234",
			Origin: "Colombo", Destination: "Kandy", Features: "AC, WiFi",
			StartTime: "06:30", ReachTime: "09:45",
			TotalSeats: 40, PriceCents: 150000, SeatNumbers: seats("ABCDEFGHIJ", 4),
		},
		{
			Name: "Coastal Line", Number: "NC-5678",
			Origin: "Colombo", Destination: "Galle", Features: "AC",
			StartTime: "07:15", ReachTime: "09:30",
			TotalSeats: 32, PriceCents: 90000, SeatNumbers: seats("ABCDEFGH", 4),
		},
	}
}

func main() {
	cmd := flag.String("cmd", "up", "migration command: up, down, steps, version")
	steps := flag.Int("n", 1, "number of steps for -cmd steps (negative rolls back)")
	seed := flag.Bool("seed-demo", false, "insert demo vehicles after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Options{Output: os.Stdout, MinLevel: logger.ParseLevel(cfg.Log.Level), ColorEnabled: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, log)
	switch *cmd {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "steps":
		err = runner.Steps(*steps)
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = runner.Version()
		if err == nil {
			log.Info("MIGRATE", fmt.Sprintf("version=%d dirty=%t", version, dirty))
		}
	default:
		err = fmt.Errorf("unknown command %q", *cmd)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if *seed {
		svc := catalog.NewService(&catalogdb.DB{Bun: bunDB})
		for _, v := range demoVehicles() {
			created, err := svc.CreateVehicle(ctx, v)
			switch {
			case apperr.IsValidation(err):
				log.Info("SEED", fmt.Sprintf("Skipping %s: %v", v.Number, err))
			case err != nil:
				log.Fatal("SEED", fmt.Sprintf("Failed to create %s: %v", v.Number, err))
			default:
				log.Info("SEED", fmt.Sprintf("Created vehicle %s with %d seats", created.Number, created.TotalSeats))
			}
		}
	}
}
