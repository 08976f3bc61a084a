package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type summaryFixture struct {
	Status       string
	ConfigName   string
	ConfigCode   string
	ExecutionID  string
	Trigger      string
	StartedAt    string
	CompletedAt  string
	TotalSensors int
	SuccessCount int
	FailedCount  int
	NextRun      string
	Errors       []struct{ SensorID, MeterNumber, Error string }
}

func TestSendTemplateBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	provider := NewSMTP(Config{Host: "smtp.example.com", Port: 2525, From: "billing@example.com"})
	provider.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	data := summaryFixture{
		Status:       "PARTIAL",
		ConfigName:   "Monthly",
		ConfigCode:   "monthly",
		SuccessCount: 7,
		FailedCount:  3,
		Errors:       []struct{ SensorID, MeterNumber, Error string }{{"1", "M-001", "no_active_tariff"}},
	}
	err := provider.SendTemplate(context.Background(), []string{"a@example.com", "b@example.com"}, "Billing run", "execution_summary", data)
	require.NoError(t, err)

	require.Equal(t, "smtp.example.com:2525", gotAddr)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	require.Contains(t, gotMsg, "To: a@example.com, b@example.com\r\n")
	require.Contains(t, gotMsg, "Subject: Billing run\r\n")
	require.Contains(t, gotMsg, "M-001 (1): no_active_tariff")
	require.False(t, strings.Contains(gotMsg, "Next run"))
}

func TestSendRequiresRecipients(t *testing.T) {
	provider := NewSMTP(Config{Host: "smtp.example.com", Port: 25})
	require.Error(t, provider.Send(context.Background(), nil, "s", "b"))
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	require.Error(t, err)
}
