package sandbox

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ers/ers/internal/domain/emergency"
)

// DemoMetrics is the snapshot the hospital dashboard opens with. It already
// accounts for DemoCases.
var DemoMetrics = emergency.Metrics{
	ActiveEmergenciesArriving: 2,
	CriticalCases:             2,
	AvailableBeds:             10,
	AvgResponseTime:           8.5,
}

// DemoCases are the two patients shown on a fresh hospital dashboard.
var DemoCases = []emergency.CaseInput{
	{
		PatientName:   "John Doe",
		Age:           45,
		BloodPressure: "120/80",
		HeartRate:     75,
		Temperature:   98.6,
		OxygenLevel:   98,
		Injuries:      "Minor cuts and bruises",
	},
	{
		PatientName:   "Jane Smith",
		Age:           32,
		BloodPressure: "130/85",
		HeartRate:     90,
		Temperature:   99.1,
		OxygenLevel:   97,
		Injuries:      "Suspected fracture in left arm",
		Critical:      true,
	},
}

// SeedResult summarizes a seed operation.
type SeedResult struct {
	Cases     []emergency.Case  `json:"cases"`
	Metrics   emergency.Metrics `json:"metrics"`
	Simulated int               `json:"simulated"`
}

// Seeder loads demo data into a running ledger service.
type Seeder struct {
	svc *emergency.Service
}

func NewSeeder(svc *emergency.Service) *Seeder {
	return &Seeder{svc: svc}
}

// SeedDemo adds DemoCases and then overwrites the metrics with DemoMetrics,
// so the counters match the dashboard exactly rather than being incremented
// on top of the current snapshot.
func (s *Seeder) SeedDemo(ctx context.Context) SeedResult {
	res := SeedResult{Cases: make([]emergency.Case, 0, len(DemoCases))}
	for _, in := range DemoCases {
		res.Cases = append(res.Cases, s.svc.AddCase(ctx, in))
	}
	m := DemoMetrics
	res.Metrics = s.svc.SetMetrics(ctx, emergency.MetricsPatch{
		ActiveEmergenciesArriving: &m.ActiveEmergenciesArriving,
		CriticalCases:             &m.CriticalCases,
		AvailableBeds:             &m.AvailableBeds,
		AvgResponseTime:           &m.AvgResponseTime,
	})
	return res
}

// Simulate adds n simulated bookings. The service must have a booking
// generator configured.
func (s *Seeder) Simulate(ctx context.Context, n int) ([]emergency.Case, error) {
	out := make([]emergency.Case, 0, n)
	for i := 0; i < n; i++ {
		c, err := s.svc.SimulateBooking(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// SeedRequest is the body of POST /sandbox/seed.
type SeedRequest struct {
	Demo     bool `json:"demo"`
	Bookings int  `json:"bookings"`
}

const maxSeedBookings = 500

// SeedHandler exposes the seeder over HTTP. It is only registered outside
// production.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	var req SeedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Bookings < 0 || req.Bookings > maxSeedBookings {
		return echo.NewHTTPError(http.StatusBadRequest, "bookings must be between 0 and 500")
	}

	ctx := c.Request().Context()
	var res SeedResult
	if req.Demo {
		res = h.seeder.SeedDemo(ctx)
	}
	simulated, err := h.seeder.Simulate(ctx, req.Bookings)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	res.Cases = append(res.Cases, simulated...)
	res.Simulated = len(simulated)
	res.Metrics = h.seeder.svc.Metrics(ctx)
	return c.JSON(http.StatusCreated, res)
}
