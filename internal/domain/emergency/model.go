package emergency

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle position of a case in the emergency department.
type Status string

const (
	StatusArriving       Status = "Arriving"
	StatusAdmitted       Status = "Admitted"
	StatusReleasedFromER Status = "Released from ER"
)

// ParseStatus accepts the dashboard labels as well as the compact
// "ReleasedFromER" spelling. Matching ignores case and surrounding space.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arriving":
		return StatusArriving, nil
	case "admitted":
		return StatusAdmitted, nil
	case "released from er", "releasedfromer", "released_from_er":
		return StatusReleasedFromER, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusArriving, StatusAdmitted, StatusReleasedFromER:
		return true
	}
	return false
}

// Case is a single emergency case tracked by the ledger.
type Case struct {
	ID            string    `json:"id"`
	PatientName   string    `json:"patient_name"`
	Age           int       `json:"age"`
	BloodPressure string    `json:"blood_pressure"`
	HeartRate     int       `json:"heart_rate"`
	Temperature   float64   `json:"temperature"`
	OxygenLevel   int       `json:"oxygen_level"`
	Injuries      string    `json:"injuries"`
	ArrivalTime   time.Time `json:"arrival_time"`
	Status        Status    `json:"status"`
	Critical      bool      `json:"critical"`
	AccessCode    string    `json:"access_code"`
	History       string    `json:"history,omitempty"`
}

// CaseInput carries the fields supplied by the booking/arrival event.
type CaseInput struct {
	PatientName   string  `json:"patient_name"`
	Age           int     `json:"age"`
	BloodPressure string  `json:"blood_pressure"`
	HeartRate     int     `json:"heart_rate"`
	Temperature   float64 `json:"temperature"`
	OxygenLevel   int     `json:"oxygen_level"`
	Injuries      string  `json:"injuries"`
	Critical      bool    `json:"critical"`
}

// Metrics is the aggregate snapshot shown on the hospital dashboard.
type Metrics struct {
	ActiveEmergenciesArriving int     `json:"active_emergencies_arriving"`
	CriticalCases             int     `json:"critical_cases"`
	AvailableBeds             int     `json:"available_beds"`
	AvgResponseTime           float64 `json:"avg_response_time"`
}

// MetricsPatch overwrites the non-nil fields of a Metrics snapshot.
type MetricsPatch struct {
	ActiveEmergenciesArriving *int     `json:"active_emergencies_arriving,omitempty"`
	CriticalCases             *int     `json:"critical_cases,omitempty"`
	AvailableBeds             *int     `json:"available_beds,omitempty"`
	AvgResponseTime           *float64 `json:"avg_response_time,omitempty"`
}

func (p MetricsPatch) apply(m Metrics) Metrics {
	if p.ActiveEmergenciesArriving != nil {
		m.ActiveEmergenciesArriving = *p.ActiveEmergenciesArriving
	}
	if p.CriticalCases != nil {
		m.CriticalCases = *p.CriticalCases
	}
	if p.AvailableBeds != nil {
		m.AvailableBeds = *p.AvailableBeds
	}
	if p.AvgResponseTime != nil {
		m.AvgResponseTime = *p.AvgResponseTime
	}
	return m
}

// Transition describes the metrics delta applied by a status change.
type Transition struct {
	From          Status `json:"from"`
	To            Status `json:"to"`
	ArrivingDelta int    `json:"arriving_delta"`
	BedsDelta     int    `json:"beds_delta"`
	WritesHistory bool   `json:"writes_history"`
}

// transitionFor is keyed on the (old, new) pair only. Pairs not listed
// overwrite the status without touching metrics or history.
func transitionFor(from, to Status) Transition {
	t := Transition{From: from, To: to}
	switch {
	case from == StatusArriving && to == StatusAdmitted:
		t.ArrivingDelta, t.BedsDelta, t.WritesHistory = -1, -1, true
	case from == StatusArriving && to == StatusReleasedFromER:
		t.ArrivingDelta, t.WritesHistory = -1, true
	case from == StatusAdmitted && to == StatusReleasedFromER:
		t.BedsDelta, t.WritesHistory = 1, true
	}
	return t
}

func historyEntry(accessCode string, at time.Time) string {
	return fmt.Sprintf("Access code: %s - Accessed on %s", accessCode, at.Format(time.RFC3339))
}
