// Command seed loads synthetic policies, outages, and weather observations
// into the ledger for local pipeline runs. It uses the real domain package,
// so seeded rows look exactly like production data to the workers.
//
// Usage:
//
//	go run ./cmd/seed -policies 25 -outages 5 -storm
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/parametric-claims/internal/adapter/postgres"
	"github.com/couchcryptid/parametric-claims/internal/domain"
)

// Seeded data clusters around downtown Austin so zip and radius matching
// both have something to find.
var (
	baseLat  = 30.2672
	baseLon  = -97.7431
	zipCodes = []string{"78701", "78702", "78703", "78704", "78705"}

	utilities  = []string{"Austin Energy", "Oncor", "CenterPoint Energy"}
	causes     = []string{"storm_damage", "high_winds", "equipment_failure", "vehicle_accident"}
	businesses = []string{
		"Lavaca Street Bakery", "Congress Data Center", "Rainey Cold Storage",
		"East Side Brewing", "Barton Springs Dental", "Red River Print Shop",
		"South Lamar Grocers", "Zilker Urgent Care",
	}
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	policies := flag.Int("policies", 10, "number of policies to seed")
	outages := flag.Int("outages", 3, "number of active outages to seed")
	storm := flag.Bool("storm", false, "also seed severe weather observations")
	seed := flag.Int64("seed", 42, "random seed for reproducible data")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx := context.Background()
	store, err := postgres.Open(ctx, databaseURL, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	rng := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC()

	created := 0
	for i := 0; i < *policies; i++ {
		p := makePolicy(rng, i, now)
		ok, err := store.InsertPolicy(ctx, p)
		if err != nil {
			return fmt.Errorf("seeding policy %s: %w", p.PolicyID, err)
		}
		if ok {
			created++
		}
	}
	log.Printf("policies: %d created, %d already present", created, *policies-created)

	created = 0
	for i := 0; i < *outages; i++ {
		o := makeOutage(rng, i, now)
		ok, err := store.InsertOutage(ctx, o)
		if err != nil {
			return fmt.Errorf("seeding outage %s: %w", o.EventID, err)
		}
		if ok {
			created++
		}
		log.Printf("outage %s: %s, %d customers, started %s",
			o.EventID, o.Location.ZipCode, o.AffectedCustomers, o.OutageStart.Format(time.RFC3339))
	}
	log.Printf("outages: %d created, %d already present", created, *outages-created)

	if *storm {
		for _, zip := range zipCodes {
			w := makeStormObservation(rng, zip, now)
			if err := store.InsertWeather(ctx, w); err != nil {
				return fmt.Errorf("seeding weather for %s: %w", zip, err)
			}
		}
		log.Printf("weather: severe observations seeded for %d zips", len(zipCodes))
	}

	return nil
}

func makePolicy(rng *rand.Rand, i int, now time.Time) domain.Policy {
	effective := now.AddDate(0, -6, 0)
	expiration := now.AddDate(1, 0, 0)
	return domain.Policy{
		PolicyID:         fmt.Sprintf("POL-%04d", i+1),
		BusinessName:     businesses[i%len(businesses)],
		Location:         jitteredLocation(rng, zipCodes[i%len(zipCodes)]),
		ThresholdMinutes: []int{60, 120, 240}[rng.Intn(3)],
		HourlyRate:       decimal.NewFromInt(int64(100 + rng.Intn(9)*50)),
		MaxPayout:        decimal.NewFromInt(int64(5000 + rng.Intn(4)*2500)),
		Status:           "active",
		EffectiveDate:    &effective,
		ExpirationDate:   &expiration,
		ContactEmail:     fmt.Sprintf("claims+pol%04d@example.com", i+1),
	}
}

func makeOutage(rng *rand.Rand, i int, now time.Time) domain.OutageEvent {
	utility := utilities[i%len(utilities)]
	// Stagger starts so some outages are already past typical thresholds.
	start := now.Add(-time.Duration(45+rng.Intn(240)) * time.Minute)
	return domain.OutageEvent{
		EventID:           domain.OutageEventID(utility, start),
		UtilityName:       utility,
		Location:          jitteredLocation(rng, zipCodes[i%len(zipCodes)]),
		AffectedCustomers: 500 + rng.Intn(10000),
		OutageStart:       start,
		Status:            domain.OutageActive,
		ReportedCause:     causes[rng.Intn(len(causes))],
		DataSource:        "seed",
	}
}

func makeStormObservation(rng *rand.Rand, zip string, now time.Time) domain.WeatherObservation {
	return domain.WeatherObservation{
		Location:           jitteredLocation(rng, zip),
		ObservedAt:         now.Add(-time.Duration(rng.Intn(30)) * time.Minute),
		TemperatureF:       68 + rng.Float64()*10,
		WindSpeedMPH:       42 + rng.Float64()*10,
		WindGustMPH:        58 + rng.Float64()*15,
		Conditions:         "thunderstorm",
		SevereWeatherAlert: true,
		AlertType:          "Severe Thunderstorm Warning",
	}
}

func jitteredLocation(rng *rand.Rand, zip string) domain.Location {
	return domain.Location{
		Latitude:  baseLat + (rng.Float64()-0.5)*0.08,
		Longitude: baseLon + (rng.Float64()-0.5)*0.08,
		ZipCode:   zip,
		City:      "Austin",
		State:     "TX",
	}
}
