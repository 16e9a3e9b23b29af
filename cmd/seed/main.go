// Command seed generates a realistic transaction batch for the monitor and
// writes it as CSV.
//
// Usage:
//
//	go run ./cmd/seed [-out data/transactions.csv] [-seed 42]
//
// The generated batch spans 7 days and contains:
//   - mostly normal daytime purchases from consistent users
//   - a handful of large purchases
//   - purchases between midnight and 06:00
//   - rapid bursts from single users
//   - users hopping between merchants within minutes
//   - purchases far above what a merchant usually sees
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lumina/txn-monitor/internal/domain"
	"lumina/txn-monitor/internal/loader"
)

// base is fixed so repeated runs produce identical files.
var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func main() {
	out := flag.String("out", "data/transactions.csv", "output CSV path")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	var txns []domain.Transaction
	txns = append(txns, generateNormalUsers(rng)...)
	txns = append(txns, generateLargePurchases(rng)...)
	txns = append(txns, generateNightOwls(rng)...)
	txns = append(txns, generateBursts(rng)...)
	txns = append(txns, generateMerchantHopping(rng)...)
	txns = append(txns, generateMerchantOutliers(rng)...)

	// Chronological order, like a real export.
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Timestamp.Before(txns[j].Timestamp)
	})

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := loader.WriteCSV(f, txns); err != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d transactions → %s\n", len(txns), *out)
}

// ─── Normal users ─────────────────────────────────────────────────────────────

// normalUser describes a consistent, legitimate customer.
type normalUser struct {
	id        string
	merchants []string
	avgAmount float64
}

var normalUsers = []normalUser{
	{id: "carlos.silva", merchants: []string{"Padaria Central", "Mercado Bom Preco"}, avgAmount: 35},
	{id: "sofia.ramirez", merchants: []string{"Farmacia Del Sol", "Cine Estrella"}, avgAmount: 150},
	{id: "diego.moreno", merchants: []string{"Libreria Austral"}, avgAmount: 80},
	{id: "ana.garcia", merchants: []string{"Cafe Andino", "Mercado Bom Preco"}, avgAmount: 45},
	{id: "pedro.oliveira", merchants: []string{"Padaria Central"}, avgAmount: 28},
	{id: "maria.lopez", merchants: []string{"Farmacia Del Sol", "Cafe Andino"}, avgAmount: 60},
	{id: "juan.hernandez", merchants: []string{"Libreria Austral", "Cine Estrella"}, avgAmount: 55},
	{id: "valentina.torres", merchants: []string{"Cafe Andino"}, avgAmount: 38},
}

func generateNormalUsers(rng *rand.Rand) []domain.Transaction {
	var txns []domain.Transaction
	for _, u := range normalUsers {
		// Two to three purchases a day, at least three hours apart, 08:00-21:00.
		for day := 0; day < 7; day++ {
			count := 2 + rng.Intn(2)
			for i := 0; i < count; i++ {
				hour := 8 + i*4 + rng.Intn(2)
				minute := rng.Intn(60)
				ts := base.Add(time.Duration(day)*24*time.Hour + time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)

				txns = append(txns, domain.Transaction{
					UserID:       u.id,
					Timestamp:    ts,
					MerchantName: u.merchants[rng.Intn(len(u.merchants))],
					// Amounts vary ±30% around the user's average.
					Amount: roundTo2(u.avgAmount * (0.7 + rng.Float64()*0.6)),
				})
			}
		}
	}
	return txns
}

// ─── Large purchases ──────────────────────────────────────────────────────────

func generateLargePurchases(rng *rand.Rand) []domain.Transaction {
	var txns []domain.Transaction
	buyers := []string{"big.spender1", "big.spender2", "big.spender3"}
	for i, id := range buyers {
		ts := base.Add(time.Duration(i+1)*24*time.Hour + 15*time.Hour)
		txns = append(txns, domain.Transaction{
			UserID:       id,
			Timestamp:    ts,
			MerchantName: "Electronics Hub",
			Amount:       roundTo2(12000 + rng.Float64()*8000),
		})
	}
	return txns
}

// ─── Night owls ───────────────────────────────────────────────────────────────

func generateNightOwls(rng *rand.Rand) []domain.Transaction {
	var txns []domain.Transaction
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i)*24*time.Hour + time.Duration(rng.Intn(6))*time.Hour + time.Duration(rng.Intn(60))*time.Minute)
		txns = append(txns, domain.Transaction{
			UserID:       fmt.Sprintf("night.owl%d", i%2+1),
			Timestamp:    ts,
			MerchantName: "24h Convenience",
			Amount:       roundTo2(20 + rng.Float64()*60),
		})
	}
	return txns
}

// ─── Rapid bursts ─────────────────────────────────────────────────────────────

func generateBursts(rng *rand.Rand) []domain.Transaction {
	var txns []domain.Transaction

	// Two separate clusters of six purchases, 90 seconds apart, on day 3.
	for c, start := range []time.Duration{3*24*time.Hour + 13*time.Hour, 3*24*time.Hour + 18*time.Hour} {
		for i := 0; i < 6; i++ {
			txns = append(txns, domain.Transaction{
				UserID:       "card.tester",
				Timestamp:    base.Add(start + time.Duration(i*90)*time.Second),
				MerchantName: "Gift Card Kiosk",
				Amount:       roundTo2(5 + rng.Float64()*float64(c+1)),
			})
		}
	}
	return txns
}

// ─── Merchant hopping ─────────────────────────────────────────────────────────

func generateMerchantHopping(rng *rand.Rand) []domain.Transaction {
	var txns []domain.Transaction
	stops := []string{"Fuel Stop North", "Airport Duty Free", "Fuel Stop South"}
	start := base.Add(5*24*time.Hour + 11*time.Hour)
	for i, m := range stops {
		txns = append(txns, domain.Transaction{
			UserID:       "road.runner",
			Timestamp:    start.Add(time.Duration(i*25) * time.Minute),
			MerchantName: m,
			Amount:       roundTo2(40 + rng.Float64()*30),
		})
	}
	return txns
}

// ─── Merchant outliers ────────────────────────────────────────────────────────

func generateMerchantOutliers(rng *rand.Rand) []domain.Transaction {
	var txns []domain.Transaction
	start := base.Add(6*24*time.Hour + 9*time.Hour)

	// A steady stream of small orders at one stall, then one order worth
	// well over ten times the usual ticket.
	for i := 0; i < 9; i++ {
		txns = append(txns, domain.Transaction{
			UserID:       fmt.Sprintf("regular%d", i),
			Timestamp:    start.Add(time.Duration(i*20) * time.Minute),
			MerchantName: "Juice Stall",
			Amount:       roundTo2(6 + rng.Float64()*2),
		})
	}
	txns = append(txns, domain.Transaction{
		UserID:       "odd.order",
		Timestamp:    start.Add(4 * time.Hour),
		MerchantName: "Juice Stall",
		Amount:       roundTo2(150 + rng.Float64()*50),
	})
	return txns
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
