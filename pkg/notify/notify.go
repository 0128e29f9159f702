// Package notify fans newly detected alerts out to the broadcast channel
// and, when configured, to an email recipient over SMTP.
package notify

import (
	"fmt"

	mail "github.com/wneessen/go-mail"

	"pomon/internal/utils"
	"pomon/pkg/monitor"
)

const gmailSMTPHost = "smtp.gmail.com"

// Broadcaster is the push channel alerts are always written to.
type Broadcaster interface {
	Publish(kind, message string)
}

// Notifier implements monitor.AlertNotifier.
type Notifier struct {
	hub Broadcaster

	// send is swappable for tests.
	send func(cfg *monitor.EmailConfig, subject, body string) error
}

func New(hub Broadcaster) *Notifier {
	return &Notifier{hub: hub, send: sendEmail}
}

// Notify emits one alert: always a broadcast record, plus an email when the
// config is complete. An email failure is logged and changes nothing about
// the alert's dedup state.
func (n *Notifier) Notify(a monitor.Alert, email *monitor.EmailConfig) {
	msg := FormatAlert(a)
	n.hub.Publish(monitor.KindAlert, msg)

	if !email.Complete() {
		return
	}
	subject := fmt.Sprintf("Problematic PO Alert: %s", a.PONumber)
	if err := n.send(email, subject, msg); err != nil {
		n.hub.Publish(monitor.KindError, fmt.Sprintf("Failed to send email: %v", err))
		utils.Log.Errorf("Failed to send email for PO %s: %v", a.PONumber, err)
		return
	}
	n.hub.Publish(monitor.KindEmailSent, fmt.Sprintf("Email notification sent: %s", subject))
}

// FormatAlert renders the operator-facing alert line.
func FormatAlert(a monitor.Alert) string {
	created := a.CreatedDate
	if created == "" {
		created = "N/A"
	}
	return fmt.Sprintf("ALERT PO: %s (Created: %s) - Ancillary (%g) > Pallets (%d). Diff: %g",
		a.PONumber, created, a.AncillaryTotal, a.PalletsIn, a.Diff)
}

func sendEmail(cfg *monitor.EmailConfig, subject, body string) error {
	host := cfg.SMTPHost
	port := cfg.SMTPPort
	secure := cfg.SMTPSecure
	if cfg.SenderService == "gmail" {
		host = gmailSMTPHost
		port = 587
		secure = false
	}
	if port == 0 {
		port = 587
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SenderUser),
		mail.WithPassword(cfg.SenderPass),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if secure {
		opts = append(opts, mail.WithSSL())
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return fmt.Errorf("building mail client: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat("PO Monitor", cfg.SenderUser); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(cfg.Recipient); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return client.DialAndSend(msg)
}
