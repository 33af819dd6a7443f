// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

// ErrNotificationFailure wraps delivery errors. They are logged, never returned
// to engine callers.
var ErrNotificationFailure = errors.New("notification delivery failed")

// Notifier delivers one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPNotifier struct {
	config config.EmailConfig
}

func NewSMTPNotifier(cfg config.EmailConfig) *SMTPNotifier {
	return &SMTPNotifier{config: cfg}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.config.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email would be sent")
		return nil
	}

	auth := smtp.PlainAuth("", n.config.SMTPUsername, n.config.SMTPPassword, n.config.SMTPHost)
	from := n.config.FromEmail
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.FromEmail)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", from, to, subject, body))
	addr := fmt.Sprintf("%s:%s", n.config.SMTPHost, n.config.SMTPPort)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, n.config.FromEmail, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type EmailTemplate struct {
	Subject string
	Body    string
}

// NotificationService renders lifecycle events and dispatches them without
// blocking the operation that produced them.
type NotificationService struct {
	notifier Notifier
	config   *config.Config
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewNotificationService(notifier Notifier, cfg *config.Config) *NotificationService {
	timeout := cfg.Email.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NotificationService{
		notifier: notifier,
		config:   cfg,
		timeout:  timeout,
	}
}

func (s *NotificationService) ApplicationReceived(holder *models.Policyholder, premium *models.Premium) {
	s.notify(holder.Email, "application_received", map[string]interface{}{
		"Name":         holder.DisplayName,
		"Amount":       formatMoney(premium.FinalAmount, premium.Currency),
		"BillingCycle": premium.BillingCycle,
		"DueDate":      premium.PaymentStatus.DueDate.Format("02 Jan 2006"),
		"RiskTier":     premium.AdjustmentFactors.ContentRiskTier,
	})
}

func (s *NotificationService) PolicyApproved(holder *models.Policyholder) {
	s.notify(holder.Email, "policy_approved", map[string]interface{}{
		"Name":      holder.DisplayName,
		"StartDate": formatDate(holder.InsuranceStatus.PolicyStartDate),
		"URL":       fmt.Sprintf("%s/policy", s.config.Frontend.BaseURL),
	})
}

func (s *NotificationService) PolicyRejected(holder *models.Policyholder) {
	s.notify(holder.Email, "policy_rejected", map[string]interface{}{
		"Name":   holder.DisplayName,
		"Reason": holder.InsuranceStatus.RejectionReason,
	})
}

func (s *NotificationService) PolicySurrendered(holder *models.Policyholder) {
	s.notify(holder.Email, "policy_surrendered", map[string]interface{}{
		"Name":    holder.DisplayName,
		"EndDate": formatDate(holder.InsuranceStatus.PolicyEndDate),
	})
}

func (s *NotificationService) ClaimDecided(holder *models.Policyholder, claim *models.Claim) {
	s.notify(holder.Email, "claim_decided", map[string]interface{}{
		"Name":     holder.DisplayName,
		"ClaimID":  claim.ID,
		"Status":   claim.CurrentStatus(),
		"Approved": claim.CurrentStatus() == models.ClaimStatusApproved,
		"Amount":   formatMoney(claim.Evaluation.PayoutAmount, claim.Details.Currency),
		"Notes":    claim.Evaluation.ReviewNotes,
	})
}

func (s *NotificationService) ClaimPaid(holder *models.Policyholder, claim *models.Claim) {
	s.notify(holder.Email, "claim_paid", map[string]interface{}{
		"Name":    holder.DisplayName,
		"ClaimID": claim.ID,
		"Amount":  formatMoney(claim.Evaluation.PayoutAmount, claim.Details.Currency),
	})
}

func (s *NotificationService) PaymentFailed(holder *models.Policyholder, premium *models.Premium, reason string) {
	s.notify(holder.Email, "payment_failed", map[string]interface{}{
		"Name":   holder.DisplayName,
		"Amount": formatMoney(premium.FinalAmount, premium.Currency),
		"Reason": reason,
	})
}

// Wait blocks until in-flight notifications finish.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) notify(to, templateType string, data map[string]interface{}) {
	tmpl := getEmailTemplate(templateType)
	subject, err := renderTemplate(tmpl.Subject, data)
	if err != nil {
		logrus.WithError(err).WithField("template", templateType).Warn("Failed to render email subject")
		return
	}
	body, err := renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithError(err).WithField("template", templateType).Warn("Failed to render email template")
		return
	}

	s.wg.Add(1)
	go s.dispatch(to, subject, body)
}

func (s *NotificationService) dispatch(to, subject, body string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		logrus.WithError(fmt.Errorf("%w: %v", ErrNotificationFailure, err)).
			WithFields(logrus.Fields{"to": to, "subject": subject}).
			Warn("Notification not delivered")
	}
}

func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func formatMoney(amount float64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02 Jan 2006")
}

func getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"application_received": {
			Subject: "Your CreatorShield application is under review",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	<p>We received your application. Your quoted premium is <strong>{{.Amount}}</strong> billed {{.BillingCycle}}, first due on {{.DueDate}}.</p>
	<p>Assessed content risk: {{.RiskTier}}.</p>
	<p>Best regards,<br>CreatorShield Team</p>
</body>
</html>`,
		},
		"policy_approved": {
			Subject: "Your CreatorShield policy is active",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome aboard, {{.Name}}!</h2>
	<p>Your income protection policy started on {{.StartDate}}.</p>
	<a href="{{.URL}}">View your policy</a>
</body>
</html>`,
		},
		"policy_rejected": {
			Subject: "Update on your CreatorShield application",
			Body:    `<p>Hello {{.Name}}, we could not approve your application.</p><p>Reason: {{.Reason}}</p>`,
		},
		"policy_surrendered": {
			Subject: "Your CreatorShield policy has ended",
			Body:    `<p>Hello {{.Name}}, your policy was surrendered effective {{.EndDate}}. You can apply again at any time.</p>`,
		},
		"claim_decided": {
			Subject: "Claim {{.ClaimID}}: {{.Status}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	{{if .Approved}}<p>Your claim was approved for a payout of <strong>{{.Amount}}</strong>.</p>{{else}}<p>Your claim was not approved.</p>{{end}}
	{{if .Notes}}<p>Reviewer notes: {{.Notes}}</p>{{end}}
</body>
</html>`,
		},
		"claim_paid": {
			Subject: "Claim {{.ClaimID}} paid",
			Body:    `<p>Hello {{.Name}}, {{.Amount}} has been paid out for your claim.</p>`,
		},
		"payment_failed": {
			Subject: "Premium payment failed",
			Body:    `<p>Hello {{.Name}}, your premium payment of {{.Amount}} failed: {{.Reason}}. Please retry from your dashboard.</p>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
