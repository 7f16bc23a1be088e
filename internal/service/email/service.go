package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
)

// Provider is a transport that can deliver a single message.
type Provider interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

// Config selects the provider and carries its credentials.
type Config struct {
	// Provider type: "sendgrid" or "smtp"
	Provider string

	FromEmail string
	FromName  string

	SendGridAPIKey string

	// SMTP settings (Mailhog in development)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool

	// Base URL for links in emails
	BaseURL string
}

// DefaultConfig targets a local Mailhog instance.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "smtp",
		FromEmail: "noreply@chargenet.my",
		FromName:  "ChargeNet",
		SMTPHost:  "localhost",
		SMTPPort:  1025,
		BaseURL:   "http://localhost:3000",
	}
}

// Service renders templates and delivers mail through the configured
// provider. It satisfies ports.Mailer.
type Service struct {
	config    *Config
	provider  Provider
	templates map[string]*template.Template
	log       *zap.Logger
}

func NewService(config *Config, log *zap.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
		log:       log,
	}

	switch config.Provider {
	case "sendgrid":
		if config.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SendGrid API key is required")
		}
		s.provider = NewSendGridProvider(config.SendGridAPIKey, config.FromEmail, config.FromName)
	case "smtp":
		s.provider = NewSMTPProvider(
			config.SMTPHost,
			config.SMTPPort,
			config.SMTPUsername,
			config.SMTPPassword,
			config.FromEmail,
			config.FromName,
			config.SMTPUseTLS,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", config.Provider)
	}

	s.loadTemplates()
	return s, nil
}

func (s *Service) loadTemplates() {
	s.templates["welcome"] = template.Must(template.New("welcome").Parse(welcomeTemplate))
	s.templates["topup_receipt"] = template.Must(template.New("topup_receipt").Parse(topupReceiptTemplate))
	s.templates["charging_receipt"] = template.Must(template.New("charging_receipt").Parse(chargingReceiptTemplate))
	s.templates["low_balance"] = template.Must(template.New("low_balance").Parse(lowBalanceTemplate))
	s.templates["ticket_update"] = template.Must(template.New("ticket_update").Parse(ticketUpdateTemplate))
}

// Send delivers a message through the configured provider.
func (s *Service) Send(ctx context.Context, to, subject, body string, isHTML bool) error {
	if err := s.provider.Send(ctx, to, subject, body, isHTML); err != nil {
		s.log.Error("Failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}
	s.log.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// SendTemplate renders a named template and sends it as HTML. The data map
// may carry a "Subject" entry; BaseURL is always injected.
func (s *Service) SendTemplate(ctx context.Context, to, templateName string, data map[string]interface{}) error {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return fmt.Errorf("template not found: %s", templateName)
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	data["BaseURL"] = s.config.BaseURL

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("execute template %s: %w", templateName, err)
	}

	subject, ok := data["Subject"].(string)
	if !ok {
		subject = "Notification from ChargeNet"
	}
	return s.Send(ctx, to, subject, buf.String(), true)
}

// SendWelcome greets a new account.
func (s *Service) SendWelcome(ctx context.Context, user *domain.User) error {
	return s.SendTemplate(ctx, user.Email, "welcome", map[string]interface{}{
		"Subject":  "Welcome to ChargeNet",
		"UserName": user.Name,
		"Email":    user.Email,
	})
}

// SendTopupReceipt confirms a completed wallet top-up.
func (s *Service) SendTopupReceipt(ctx context.Context, user *domain.User, txn *domain.WalletTransaction) error {
	return s.SendTemplate(ctx, user.Email, "topup_receipt", map[string]interface{}{
		"Subject":    "Wallet Top-up Receipt",
		"UserName":   user.Name,
		"Amount":     txn.Amount.StringFixed(2),
		"Currency":   domain.WalletCurrency,
		"Points":     txn.PointsAmount,
		"NewBalance": txn.BalanceAfter.StringFixed(2),
		"Reference":  txn.GatewayReference,
	})
}

// SendChargingReceipt summarizes a completed charging session.
func (s *Service) SendChargingReceipt(ctx context.Context, user *domain.User, session *domain.ChargingSession) error {
	return s.SendTemplate(ctx, user.Email, "charging_receipt", map[string]interface{}{
		"Subject":     "Charging Session Receipt",
		"UserName":    user.Name,
		"ChargePoint": session.ChargePointID,
		"EnergyKWh":   fmt.Sprintf("%.2f", session.EnergyKWh),
		"Cost":        session.Cost.StringFixed(2),
		"Currency":    session.Currency,
	})
}

// SendLowBalance warns when the wallet drops below a threshold.
func (s *Service) SendLowBalance(ctx context.Context, user *domain.User, balance decimal.Decimal) error {
	return s.SendTemplate(ctx, user.Email, "low_balance", map[string]interface{}{
		"Subject":  "Low Wallet Balance",
		"UserName": user.Name,
		"Balance":  balance.StringFixed(2),
		"Currency": domain.WalletCurrency,
	})
}

// SendTicketUpdate notifies the reporter of a ticket status change.
func (s *Service) SendTicketUpdate(ctx context.Context, user *domain.User, ticket *domain.SupportTicket) error {
	return s.SendTemplate(ctx, user.Email, "ticket_update", map[string]interface{}{
		"Subject":      fmt.Sprintf("Update on ticket %s", ticket.TicketNumber),
		"UserName":     user.Name,
		"TicketNumber": ticket.TicketNumber,
		"Status":       string(ticket.Status),
		"TicketSubject": ticket.Subject,
	})
}
