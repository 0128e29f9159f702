// Package monitor implements the PO monitoring engine: the authenticated
// portal session lifecycle, the polling loop, the discrepancy detection over
// the PO/truck and ancillary-fee datasets, and alert dedup.
package monitor

import (
	"time"

	"pomon/pkg/portal"
)

// Logger is the operator-facing log stream. The websocket hub satisfies it;
// tests use an in-memory recorder; nil means no operator stream.
type Logger interface {
	Publish(kind, message string)
}

type nopLogger struct{}

func (nopLogger) Publish(string, string) {}

// Broadcast record kinds understood by the dashboard.
const (
	KindInfo      = "monitor-display-info"
	KindSystem    = "monitor-display-system"
	KindAlert     = "monitor-alert-po-detail"
	KindEmailSent = "monitor-alert-email-sent"
	KindError     = "error"
	KindWarn      = "warn"
	KindDebug     = "debug"
)

// EmailConfig describes where alert emails go and how to send them. A config
// is complete when recipient, sender user, and sender password are set, plus
// host and port when the custom service is chosen.
type EmailConfig struct {
	Recipient     string
	SenderService string // "gmail" or "custom"
	SenderUser    string
	SenderPass    string
	SMTPHost      string
	SMTPPort      int
	SMTPSecure    bool
}

// Complete reports whether the config carries everything needed to send.
func (c *EmailConfig) Complete() bool {
	if c == nil || c.Recipient == "" || c.SenderUser == "" || c.SenderPass == "" {
		return false
	}
	if c.SenderService == "custom" && (c.SMTPHost == "" || c.SMTPPort == 0) {
		return false
	}
	return true
}

// Params captures everything a monitoring run needs. Immutable for the
// duration of the run.
type Params struct {
	Username  string
	Password  string
	Site      portal.Site
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Interval  time.Duration
	Email     *EmailConfig
}

// TruckRecord is one row of the PO/truck dataset. TruckID joins into pallet
// totals; PONumber is the identity key.
type TruckRecord struct {
	PONumber    string
	TruckID     string
	CreatedDate string
	WhiteIn     int
	ChepIn      int
	PecoIn      int
	IgpsIn      int
}

// PalletTotal is the physical pallet count this record contributes to its
// truck.
func (t TruckRecord) PalletTotal() int {
	return t.WhiteIn + t.ChepIn + t.PecoIn + t.IgpsIn
}

// Recognized ancillary fee kinds. Anything else is dropped silently.
const (
	FeeRestack = "Restack"
	FeeBadwood = "Badwood"
	FeeUpstack = "Upstack"
)

// AncillaryRecord is one surcharge line item attached to a PO.
type AncillaryRecord struct {
	PONumber string
	FeeKind  string
	Quantity float64
}

// ProcessedPO is the per-PO merge of both datasets, recomputed every cycle.
type ProcessedPO struct {
	PONumber    string
	CreatedDate string
	PalletsIn   int
	Badwoods    float64
	Restacks    float64
	Upstacks    float64
}

// Alert is a newly detected discrepancy: summed ancillary quantity strictly
// exceeds the pallets received for the PO's truck.
type Alert struct {
	PONumber       string
	CreatedDate    string
	AncillaryTotal float64
	PalletsIn      int
	Diff           float64
}

// AlertNotifier fans an alert out to the broadcast channel and, when
// configured, email.
type AlertNotifier interface {
	Notify(a Alert, email *EmailConfig)
}
