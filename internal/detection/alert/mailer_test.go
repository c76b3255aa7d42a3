package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/charlesms1246/home-iot-guard/internal/models"
)

func TestMailerSkipsWhenUnconfigured(t *testing.T) {
	m := NewMailer(MailConfig{}, zap.NewNop())

	sent := false
	m.send = func(*gomail.Message) error {
		sent = true
		return nil
	}

	err := m.Notify(3, []models.AnomalyDetail{{WindowIndex: 1}}, 10)
	require.NoError(t, err)
	assert.False(t, sent, "unconfigured mailer must not attempt delivery")
}

func TestMailerSkipsWhenNoAnomalies(t *testing.T) {
	m := NewMailer(MailConfig{
		Host: "smtp.example.com", Port: 465,
		Username: "guard@example.com", Recipient: "owner@example.com",
	}, zap.NewNop())

	sent := false
	m.send = func(*gomail.Message) error {
		sent = true
		return nil
	}

	require.NoError(t, m.Notify(0, nil, 10))
	assert.False(t, sent)
}

func TestMailerSendsAlert(t *testing.T) {
	m := NewMailer(MailConfig{
		Host: "smtp.example.com", Port: 465,
		Username: "guard@example.com", Password: "secret",
		Recipient: "owner@example.com",
	}, zap.NewNop())

	var captured *gomail.Message
	m.send = func(msg *gomail.Message) error {
		captured = msg
		return nil
	}

	details := []models.AnomalyDetail{
		{WindowIndex: 31, Rows: "31-41", Error: 0.52, Severity: "High"},
		{WindowIndex: 32, Rows: "32-42", Error: 0.31, Severity: "Medium"},
	}
	require.NoError(t, m.Notify(2, details, 90))
	require.NotNil(t, captured)
	assert.Equal(t, []string{"owner@example.com"}, captured.GetHeader("To"))
	assert.Contains(t, captured.GetHeader("Subject")[0], "2 anomalies")
}

func TestBuildBodyCapsDetails(t *testing.T) {
	details := make([]models.AnomalyDetail, 8)
	for i := range details {
		details[i] = models.AnomalyDetail{WindowIndex: i, Rows: "0-10", Severity: "Medium"}
	}

	body := buildBody(8, details, 50)
	assert.Contains(t, body, "Windows flagged: 8 of 50")
	assert.Contains(t, body, "window 4 ")
	assert.NotContains(t, body, "window 5 ")
	assert.Contains(t, body, "and 3 more")
}
