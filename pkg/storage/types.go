package storage

import "time"

// Cycle is the recorded outcome of one monitoring check.
type Cycle struct {
	StartedAt      time.Time `json:"startedAt"`
	TruckCount     int       `json:"truckCount"`
	AncillaryCount int       `json:"ancillaryCount"`
	NewAlerts      int       `json:"newAlerts"`
	Error          string    `json:"error,omitempty"`
}

// AlertRecord is one emitted discrepancy alert, kept for the dashboard
// history view.
type AlertRecord struct {
	EmittedAt      time.Time `json:"emittedAt"`
	PONumber       string    `json:"poNumber"`
	CreatedDate    string    `json:"createdDate,omitempty"`
	AncillaryTotal float64   `json:"ancillaryTotal"`
	PalletsIn      int       `json:"palletsIn"`
	Diff           float64   `json:"diff"`
}
