// Package alert delivers anomaly notifications over email and indexes
// scan activity for later analysis.
package alert

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/charlesms1246/home-iot-guard/internal/models"
)

const maxDetailsInBody = 5

// MailConfig holds SMTP settings for anomaly alerts. An empty Username or
// Recipient disables delivery.
type MailConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Recipient string `yaml:"recipient"`
}

// Enabled reports whether the config is complete enough to send mail.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.Username != "" && c.Recipient != ""
}

// Mailer sends anomaly alert emails. It satisfies the detection service's
// Notifier interface.
type Mailer struct {
	cfg    MailConfig
	logger *zap.Logger
	send   func(*gomail.Message) error
}

// NewMailer builds a Mailer. When the config is incomplete the mailer logs
// and skips delivery instead of failing scans.
func NewMailer(cfg MailConfig, logger *zap.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger}
	m.send = func(msg *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.SSL = cfg.Port == 465
		return d.DialAndSend(msg)
	}
	return m
}

// Notify emails a summary of the detected anomalies. Delivery problems are
// reported to the caller; an unconfigured mailer is not an error.
func (m *Mailer) Notify(anomalyCount int, details []models.AnomalyDetail, totalWindows int) error {
	if anomalyCount == 0 {
		return nil
	}
	if !m.cfg.Enabled() {
		m.logger.Info("mail alerts not configured, skipping notification",
			zap.Int("anomalies", anomalyCount))
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.Username)
	msg.SetHeader("To", m.cfg.Recipient)
	msg.SetHeader("Subject", fmt.Sprintf("IoT traffic alert: %d anomalies detected", anomalyCount))
	msg.SetBody("text/plain", buildBody(anomalyCount, details, totalWindows))

	if err := m.send(msg); err != nil {
		return fmt.Errorf("error sending alert email: %w", err)
	}

	m.logger.Info("anomaly alert email sent",
		zap.String("recipient", m.cfg.Recipient),
		zap.Int("anomalies", anomalyCount))
	return nil
}

func buildBody(anomalyCount int, details []models.AnomalyDetail, totalWindows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Anomalous traffic detected on your network.\n\n")
	fmt.Fprintf(&b, "Windows flagged: %d of %d\n\n", anomalyCount, totalWindows)

	n := len(details)
	if n > maxDetailsInBody {
		n = maxDetailsInBody
	}
	if n > 0 {
		b.WriteString("Top offending windows:\n")
		for _, d := range details[:n] {
			fmt.Fprintf(&b, "  window %d (rows %s): error %.6f [%s]\n",
				d.WindowIndex, d.Rows, d.Error, d.Severity)
		}
	}
	if len(details) > n {
		fmt.Fprintf(&b, "  ... and %d more\n", len(details)-n)
	}
	b.WriteString("\nReview the scan history for full details.\n")
	return b.String()
}
