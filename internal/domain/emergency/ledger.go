package emergency

import (
	"sync"
	"time"
)

// maxCodeAttempts bounds the retries spent avoiding a duplicate access code.
const maxCodeAttempts = 8

// Ledger owns the ordered set of cases and the metrics snapshot. A single
// RWMutex covers both so a status change and its metrics delta are applied
// together and observed together.
type Ledger struct {
	mu      sync.RWMutex
	cases   []*Case
	byID    map[string]int
	byCode  map[string]int
	metrics Metrics

	now     func() time.Time
	newID   func() string
	newCode CodeGenerator
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for arrival and history stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithCodeGenerator overrides the access code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(l *Ledger) { l.newCode = gen }
}

// WithIDGenerator overrides the case id generator.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// NewLedger returns an empty ledger starting from the given snapshot.
func NewLedger(initial Metrics, opts ...Option) *Ledger {
	l := &Ledger{
		byID:    make(map[string]int),
		byCode:  make(map[string]int),
		metrics: initial,
		now:     time.Now,
		newID:   newCaseID,
		newCode: NewAccessCode,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddCase records a new arriving case. It never fails.
func (l *Ledger) AddCase(in CaseInput) Case {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(in)
}

// AddGenerated builds the input from the 1-based sequence number the new
// case will take, under the same lock that records it.
func (l *Ledger) AddGenerated(gen func(seq int) CaseInput) Case {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(gen(len(l.cases) + 1))
}

func (l *Ledger) addLocked(in CaseInput) Case {
	c := &Case{
		ID:            l.newID(),
		PatientName:   in.PatientName,
		Age:           in.Age,
		BloodPressure: in.BloodPressure,
		HeartRate:     in.HeartRate,
		Temperature:   in.Temperature,
		OxygenLevel:   in.OxygenLevel,
		Injuries:      in.Injuries,
		ArrivalTime:   l.now(),
		Status:        StatusArriving,
		Critical:      in.Critical,
		AccessCode:    l.uniqueCode(),
	}

	pos := len(l.cases)
	l.cases = append(l.cases, c)
	l.byID[c.ID] = pos
	if _, taken := l.byCode[c.AccessCode]; !taken {
		l.byCode[c.AccessCode] = pos
	}

	l.metrics.ActiveEmergenciesArriving++
	if c.Critical {
		l.metrics.CriticalCases++
	}
	return *c
}

// uniqueCode must be called with the write lock held.
func (l *Ledger) uniqueCode() string {
	code := NormalizeAccessCode(l.newCode())
	for i := 1; i < maxCodeAttempts; i++ {
		if _, taken := l.byCode[code]; !taken {
			break
		}
		code = NormalizeAccessCode(l.newCode())
	}
	return code
}

// SetStatus moves a case to s and applies the metrics delta for the
// (previous, s) pair. The returned Transition describes what was applied.
func (l *Ledger) SetStatus(id string, s Status) (Case, Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.byID[id]
	if !ok {
		return Case{}, Transition{}, &NotFoundError{ID: id}
	}
	c := l.cases[pos]

	t := transitionFor(c.Status, s)
	c.Status = s
	if t.WritesHistory {
		l.metrics.ActiveEmergenciesArriving += t.ArrivingDelta
		l.metrics.AvailableBeds += t.BedsDelta
		c.History = historyEntry(c.AccessCode, l.now())
	}
	return *c, t, nil
}

// SetMetrics overwrites the patched fields. Values are taken as-is.
func (l *Ledger) SetMetrics(p MetricsPatch) Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = p.apply(l.metrics)
	return l.metrics
}

// Metrics returns the current snapshot.
func (l *Ledger) Metrics() Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.metrics
}

// ListCases returns a copy of every case in insertion order.
func (l *Ledger) ListCases() []Case {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Case, len(l.cases))
	for i, c := range l.cases {
		out[i] = *c
	}
	return out
}

// GetCase returns a copy of the case with the given id.
func (l *Ledger) GetCase(id string) (Case, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.byID[id]
	if !ok {
		return Case{}, &NotFoundError{ID: id}
	}
	return *l.cases[pos], nil
}

// FindByAccessCode looks a case up by its access code, ignoring case. When
// two cases share a code the earlier one wins.
func (l *Ledger) FindByAccessCode(code string) (Case, error) {
	code = NormalizeAccessCode(code)
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.byCode[code]
	if !ok {
		return Case{}, &NotFoundError{ByAccessCode: true}
	}
	return *l.cases[pos], nil
}
