package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ers/ers/internal/domain/emergency"
)

func newTestService(beds int) *emergency.Service {
	ledger := emergency.NewLedger(emergency.Metrics{AvailableBeds: beds, AvgResponseTime: 8.5})
	return emergency.NewService(ledger, zerolog.Nop())
}

func TestGenerator_NextBooking_Ranges(t *testing.T) {
	g := NewGenerator(42)
	critical := 0
	const n = 2000
	for i := 1; i <= n; i++ {
		in := g.NextBooking(i)

		if in.Age < 20 || in.Age > 79 {
			t.Fatalf("age out of range: %d", in.Age)
		}
		if in.HeartRate < 60 || in.HeartRate > 99 {
			t.Fatalf("heart rate out of range: %d", in.HeartRate)
		}
		if in.OxygenLevel < 95 || in.OxygenLevel > 99 {
			t.Fatalf("oxygen out of range: %d", in.OxygenLevel)
		}
		if in.Temperature < 97 || in.Temperature > 99 {
			t.Fatalf("temperature out of range: %v", in.Temperature)
		}
		if scaled := in.Temperature * 10; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("temperature has more than one decimal: %v", in.Temperature)
		}

		var sys, dia int
		if _, err := fmt.Sscanf(in.BloodPressure, "%d/%d", &sys, &dia); err != nil {
			t.Fatalf("bad blood pressure %q: %v", in.BloodPressure, err)
		}
		if sys < 100 || sys > 139 || dia < 70 || dia > 89 {
			t.Fatalf("blood pressure out of range: %s", in.BloodPressure)
		}
		if in.Injuries != "Simulated injuries" {
			t.Fatalf("unexpected injuries %q", in.Injuries)
		}
		if in.Critical {
			critical++
		}
	}

	rate := float64(critical) / n
	if rate < 0.24 || rate > 0.36 {
		t.Errorf("critical rate %.2f too far from %.2f", rate, CriticalRate)
	}
}

func TestGenerator_PatientName(t *testing.T) {
	g := NewGenerator(1)
	if got := g.NextBooking(3).PatientName; got != "Patient 3" {
		t.Errorf("expected Patient 3, got %q", got)
	}
}

func TestGenerator_Reproducible(t *testing.T) {
	a, b := NewGenerator(7), NewGenerator(7)
	for i := 1; i <= 20; i++ {
		if a.NextBooking(i) != b.NextBooking(i) {
			t.Fatalf("booking %d differs between equal seeds", i)
		}
	}
}

func TestGenerator_DifferentSeeds(t *testing.T) {
	a, b := NewGenerator(1), NewGenerator(2)
	same := true
	for i := 1; i <= 20; i++ {
		if a.NextBooking(i) != b.NextBooking(i) {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different seeds to produce different bookings")
	}
}

func TestSeeder_SeedDemo(t *testing.T) {
	svc := newTestService(4)
	res := NewSeeder(svc).SeedDemo(context.Background())

	if len(res.Cases) != 2 {
		t.Fatalf("expected 2 demo cases, got %d", len(res.Cases))
	}
	if res.Cases[0].PatientName != "John Doe" || res.Cases[0].Critical {
		t.Errorf("unexpected first case %+v", res.Cases[0])
	}
	if res.Cases[1].PatientName != "Jane Smith" || !res.Cases[1].Critical {
		t.Errorf("unexpected second case %+v", res.Cases[1])
	}
	if res.Metrics != DemoMetrics {
		t.Errorf("expected demo metrics %+v, got %+v", DemoMetrics, res.Metrics)
	}
	if m := svc.Metrics(context.Background()); m != DemoMetrics {
		t.Errorf("ledger metrics %+v, want %+v", m, DemoMetrics)
	}
}

func TestSeeder_Simulate(t *testing.T) {
	svc := newTestService(10)
	svc.SetBookingGenerator(NewGenerator(9))

	cases, err := NewSeeder(svc).Simulate(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cases) != 5 {
		t.Fatalf("expected 5 cases, got %d", len(cases))
	}
	if cases[4].PatientName != "Patient 5" {
		t.Errorf("expected Patient 5, got %q", cases[4].PatientName)
	}
	if m := svc.Metrics(context.Background()); m.ActiveEmergenciesArriving != 5 {
		t.Errorf("expected 5 arriving, got %d", m.ActiveEmergenciesArriving)
	}
}

func TestSeeder_Simulate_NoGenerator(t *testing.T) {
	svc := newTestService(10)
	if _, err := NewSeeder(svc).Simulate(context.Background(), 1); err == nil {
		t.Error("expected error without a booking generator")
	}
}

func TestSeedHandler_Seed(t *testing.T) {
	svc := newTestService(10)
	svc.SetBookingGenerator(NewGenerator(3))
	h := NewSeedHandler(NewSeeder(svc))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"demo":true,"bookings":3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.handleSeed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Cases) != 5 || res.Simulated != 3 {
		t.Errorf("expected 5 cases with 3 simulated, got %d/%d", len(res.Cases), res.Simulated)
	}
	if res.Metrics.ActiveEmergenciesArriving != 5 {
		t.Errorf("expected 5 arriving after seeding, got %d", res.Metrics.ActiveEmergenciesArriving)
	}
}

func TestSeedHandler_RejectsTooManyBookings(t *testing.T) {
	h := NewSeedHandler(NewSeeder(newTestService(10)))
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookings":10000}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.handleSeed(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
