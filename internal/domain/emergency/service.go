package emergency

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Recorder receives ledger events for telemetry. It must be safe for
// concurrent use.
type Recorder interface {
	CaseCreated(ctx context.Context, critical bool)
	StatusChanged(ctx context.Context, t Transition)
}

// BookingGenerator produces the inputs for simulated bookings. seq is the
// 1-based number the new case will have in the ledger.
type BookingGenerator interface {
	NextBooking(seq int) CaseInput
}

type nopRecorder struct{}

func (nopRecorder) CaseCreated(context.Context, bool)        {}
func (nopRecorder) StatusChanged(context.Context, Transition) {}

type Service struct {
	ledger   *Ledger
	logger   zerolog.Logger
	recorder Recorder
	bookings BookingGenerator
}

func NewService(ledger *Ledger, logger zerolog.Logger) *Service {
	return &Service{
		ledger:   ledger,
		logger:   logger.With().Str("component", "case_ledger").Logger(),
		recorder: nopRecorder{},
	}
}

// SetRecorder attaches a telemetry recorder. A nil recorder disables it.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// SetBookingGenerator enables SimulateBooking.
func (s *Service) SetBookingGenerator(g BookingGenerator) {
	s.bookings = g
}

func (s *Service) AddCase(ctx context.Context, in CaseInput) Case {
	return s.recordCreated(ctx, s.ledger.AddCase(in))
}

func (s *Service) recordCreated(ctx context.Context, c Case) Case {
	s.recorder.CaseCreated(ctx, c.Critical)
	s.logger.Info().
		Str("case_id", c.ID).
		Bool("critical", c.Critical).
		Msg("case added")
	return c
}

// SimulateBooking adds a case with generated vitals. The generator sees the
// sequence number the case is recorded under, so concurrent bookings never
// share a "Patient N" name.
func (s *Service) SimulateBooking(ctx context.Context) (Case, error) {
	if s.bookings == nil {
		return Case{}, fmt.Errorf("booking simulation is not configured")
	}
	return s.recordCreated(ctx, s.ledger.AddGenerated(s.bookings.NextBooking)), nil
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Case, error) {
	if !status.Valid() {
		return Case{}, fmt.Errorf("unknown status %q", status)
	}
	c, t, err := s.ledger.SetStatus(id, status)
	if err != nil {
		s.logger.Warn().Str("case_id", id).Str("to", string(status)).Msg("status change for unknown case")
		return Case{}, err
	}
	s.recorder.StatusChanged(ctx, t)
	s.logger.Info().
		Str("case_id", c.ID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Int("arriving_delta", t.ArrivingDelta).
		Int("beds_delta", t.BedsDelta).
		Msg("case status changed")
	return c, nil
}

func (s *Service) SetMetrics(_ context.Context, p MetricsPatch) Metrics {
	m := s.ledger.SetMetrics(p)
	s.logger.Info().
		Int("active_emergencies_arriving", m.ActiveEmergenciesArriving).
		Int("critical_cases", m.CriticalCases).
		Int("available_beds", m.AvailableBeds).
		Float64("avg_response_time", m.AvgResponseTime).
		Msg("metrics overwritten")
	return m
}

func (s *Service) Metrics(_ context.Context) Metrics {
	return s.ledger.Metrics()
}

func (s *Service) GetCase(_ context.Context, id string) (Case, error) {
	return s.ledger.GetCase(id)
}

func (s *Service) FindByAccessCode(_ context.Context, code string) (Case, error) {
	return s.ledger.FindByAccessCode(code)
}

// ListCases pages through cases in insertion order. An empty status
// returns every case.
func (s *Service) ListCases(_ context.Context, status Status, limit, offset int) ([]Case, int, error) {
	all := s.ledger.ListCases()
	if status != "" {
		filtered := all[:0]
		for _, c := range all {
			if c.Status == status {
				filtered = append(filtered, c)
			}
		}
		all = filtered
	}
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Case{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
