package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"

	"summitpass/internal/shared/config"
)

// EmailService delivers rendered notifications over SMTP.
type EmailService interface {
	SendNotification(ctx context.Context, notification *EmailNotification) error
}

// SMTPEmailService is the SMTP implementation of EmailService.
type SMTPEmailService struct {
	cfg       config.EmailConfig
	templates map[NotificationType]*template.Template
}

// NewSMTPEmailService creates a new SMTP email service
func NewSMTPEmailService(cfg config.EmailConfig) (*SMTPEmailService, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}

	s := &SMTPEmailService{
		cfg:       cfg,
		templates: make(map[NotificationType]*template.Template),
	}
	if err := s.loadTemplates(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SMTPEmailService) SendNotification(ctx context.Context, notification *EmailNotification) error {
	tmpl, ok := s.templates[notification.Type]
	if !ok {
		return fmt.Errorf("no template for notification type %s", notification.Type)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, notification.TemplateData); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.send(notification.RecipientEmail, notification.Subject, body.String())
}

func (s *SMTPEmailService) send(to, subject, htmlBody string) error {
	message := s.buildMessage(to, subject, htmlBody)

	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	if err := s.sendWithSTARTTLS(addr, auth, to, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *SMTPEmailService) buildMessage(to, subject, htmlBody string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", s.cfg.FromName, s.cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}

// sendWithSTARTTLS sends email with STARTTLS encryption
func (s *SMTPEmailService) sendWithSTARTTLS(addr string, auth smtp.Auth, to string, message []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Quit()

	tlsconfig := &tls.Config{
		ServerName: s.cfg.SMTPHost,
	}
	if err = client.StartTLS(tlsconfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err = client.Mail(s.cfg.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}

func (s *SMTPEmailService) loadTemplates() error {
	ticketTmpl, err := template.New("ticket").Parse(ticketEmailTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse ticket template: %w", err)
	}
	s.templates[NotificationTypeTicket] = ticketTmpl

	confirmTmpl, err := template.New("confirmation").Parse(confirmationEmailTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse confirmation template: %w", err)
	}
	s.templates[NotificationTypePaymentConfirmation] = confirmTmpl

	return nil
}

const ticketEmailTemplate = `<!DOCTYPE html>
<html>
<body>
  <h2>Your SummitPass Ticket</h2>
  <p>Hi {{.customerName}},</p>
  <p>Your payment is complete. Here is your ticket:</p>
  <ul>
    <li>Ticket: {{.ticketType}} &times; {{.quantity}}</li>
    <li>Order: {{.orderId}}</li>
  </ul>
  <p>Present this QR code at the entrance:</p>
  <p><img src="https://api.qrserver.com/v1/create-qr-code/?size=240x240&amp;data={{.ticketCode}}" alt="Ticket QR"/></p>
  <p>Code: <code>{{.ticketCode}}</code></p>
  <p>See you there!</p>
</body>
</html>`

const confirmationEmailTemplate = `<!DOCTYPE html>
<html>
<body>
  <h2>Payment Received</h2>
  <p>Hi {{.customerName}},</p>
  <p>We have seen your payment for order {{.orderId}} on the network. Your
  ticket will be emailed as soon as the payment fully confirms.</p>
  <p>Ticket: {{.ticketType}} &times; {{.quantity}}</p>
</body>
</html>`
