// Package sandbox produces demo data for the emergency response dashboards:
// the two cases the hospital dashboard opens with, and randomly generated
// bookings for the "simulate booking" action.
package sandbox

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ers/ers/internal/domain/emergency"
)

// CriticalRate is the share of simulated bookings flagged critical.
const CriticalRate = 0.3

// Generator produces simulated bookings. Vitals are illustrative, so a
// seeded math/rand source is used; ids and access codes still come from the
// ledger's cryptographic generators. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed. A zero seed is replaced
// with the current time, so runs differ unless a seed is pinned.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// between returns an integer in [lo, hi]. Callers hold g.mu.
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// NextBooking implements emergency.BookingGenerator. seq is used in the
// patient name ("Patient 3").
func (g *Generator) NextBooking(seq int) emergency.CaseInput {
	g.mu.Lock()
	defer g.mu.Unlock()

	return emergency.CaseInput{
		PatientName:   fmt.Sprintf("Patient %d", seq),
		Age:           g.between(20, 79),
		BloodPressure: fmt.Sprintf("%d/%d", g.between(100, 139), g.between(70, 89)),
		HeartRate:     g.between(60, 99),
		Temperature:   math.Round((97+g.rng.Float64()*2)*10) / 10,
		OxygenLevel:   g.between(95, 99),
		Injuries:      "Simulated injuries",
		Critical:      g.rng.Float64() < CriticalRate,
	}
}
