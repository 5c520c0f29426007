package email

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

type Service interface {
	SendAppointmentBooked(ctx context.Context, to string, event model.Event) error
	SendAppointmentCancelled(ctx context.Context, to string, event model.Event) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Config holds SMTP settings. An empty Host disables mail.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (c Config) Enabled() bool {
	return c.Host != ""
}

// Dialer is the part of gomail.Dialer the service needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer Dialer
	from   string
	loc    *time.Location
}

// NewService returns an SMTP backed mail service rendering times in loc.
func NewService(cfg Config, loc *time.Location) Service {
	return NewServiceWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, loc)
}

func NewServiceWithDialer(d Dialer, from string, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &smtpService{dialer: d, from: from, loc: loc}
}

func (s *smtpService) SendAppointmentBooked(ctx context.Context, to string, event model.Event) error {
	subject := fmt.Sprintf("New appointment on %s", event.Date)
	return s.SendCustom(ctx, to, subject, s.describe("booked", event))
}

func (s *smtpService) SendAppointmentCancelled(ctx context.Context, to string, event model.Event) error {
	subject := fmt.Sprintf("Appointment cancelled on %s", event.Date)
	return s.SendCustom(ctx, to, subject, s.describe("cancelled", event))
}

func (s *smtpService) describe(action string, event model.Event) string {
	when := event.Date.String()
	if event.StartTime != nil {
		when = event.StartTime.In(s.loc).Format("Mon 2 Jan 2006 15:04")
	}
	return fmt.Sprintf(
		"<p>Appointment #%d was %s.</p>\n<p>When: %s</p>\n<p>Client: %s (%s)</p>\n",
		event.AppointmentID, action, when, event.ClientName, event.ClientPhone,
	)
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
