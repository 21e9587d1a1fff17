// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/models"
)

// Mailer delivers a rendered HTML message.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type NotificationService struct {
	config *config.Config
	mailer Mailer
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(config *config.Config) *NotificationService {
	var mailer Mailer
	switch {
	case config.Email.SendGridAPIKey != "":
		mailer = &sendGridMailer{cfg: config.Email}
	case config.Email.SMTPHost != "":
		mailer = &smtpMailer{cfg: config.Email}
	default:
		mailer = logMailer{}
	}

	return &NotificationService{config: config, mailer: mailer}
}

// WithMailer replaces the delivery backend, mostly for tests.
func (s *NotificationService) WithMailer(m Mailer) *NotificationService {
	s.mailer = m
	return s
}

func (s *NotificationService) SendWelcomeEmail(user *models.User) error {
	data := map[string]interface{}{
		"Name":      user.Name,
		"LoginURL":  fmt.Sprintf("%s/login", s.config.Frontend.BaseURL),
		"SiteName":  s.config.Email.FromName,
		"Dashboard": fmt.Sprintf("%s/my/classroom", s.config.Frontend.BaseURL),
	}
	return s.send(user.Email, "welcome", data)
}

func (s *NotificationService) SendOrderReceipt(order *models.Order, user *models.User) error {
	data := map[string]interface{}{
		"Name":         user.Name,
		"OrderNo":      order.OrderNo,
		"ProductTitle": order.ProductTitle,
		"Amount":       formatWon(order.Amount),
		"OrderURL":     fmt.Sprintf("%s/my/orders/%s", s.config.Frontend.BaseURL, order.ID),
		"SiteName":     s.config.Email.FromName,
	}
	return s.send(user.Email, "order_receipt", data)
}

func (s *NotificationService) SendRefundNotice(order *models.Order, user *models.User, refunded int64, reason string) error {
	data := map[string]interface{}{
		"Name":         user.Name,
		"OrderNo":      order.OrderNo,
		"ProductTitle": order.ProductTitle,
		"Amount":       formatWon(refunded),
		"Reason":       reason,
		"SiteName":     s.config.Email.FromName,
	}
	return s.send(user.Email, "refund_notice", data)
}

func (s *NotificationService) SendStatusChangeNotice(user *models.User, oldStatus models.UserStatus) error {
	data := map[string]interface{}{
		"Name":      user.Name,
		"OldStatus": oldStatus,
		"NewStatus": user.Status,
		"SiteName":  s.config.Email.FromName,
	}
	return s.send(user.Email, "status_change", data)
}

func (s *NotificationService) send(to, templateType string, data interface{}) error {
	tmpl := s.getEmailTemplate(templateType)

	subject, err := s.renderTemplate(tmpl.Subject, data)
	if err != nil {
		return fmt.Errorf("failed to render email subject: %w", err)
	}
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.mailer.Send(to, subject, body)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
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

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"welcome": {
			Subject: "{{.SiteName}}에 오신 것을 환영합니다",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>{{.Name}}님, 환영합니다!</h2>
	<p>가입이 완료되었습니다. 내 강의실에서 수강 중인 강의를 확인할 수 있습니다.</p>
	<a href="{{.Dashboard}}">내 강의실</a>
	<p>{{.SiteName}}</p>
</body>
</html>`,
		},
		"order_receipt": {
			Subject: "[{{.SiteName}}] 결제가 완료되었습니다 ({{.OrderNo}})",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>결제 완료</h2>
	<p>{{.Name}}님, "{{.ProductTitle}}" 결제가 완료되었습니다.</p>
	<p>주문번호: {{.OrderNo}}<br>결제금액: {{.Amount}}</p>
	<a href="{{.OrderURL}}">주문 상세 보기</a>
	<p>{{.SiteName}}</p>
</body>
</html>`,
		},
		"refund_notice": {
			Subject: "[{{.SiteName}}] 환불이 처리되었습니다 ({{.OrderNo}})",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>환불 완료</h2>
	<p>{{.Name}}님, "{{.ProductTitle}}" 주문의 {{.Amount}}이 환불되었습니다.</p>
	{{if .Reason}}<p>사유: {{.Reason}}</p>{{end}}
	<p>{{.SiteName}}</p>
</body>
</html>`,
		},
		"status_change": {
			Subject: "[{{.SiteName}}] 계정 상태 변경 안내",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>{{.Name}}님의 계정 상태가 {{.OldStatus}}에서 {{.NewStatus}}(으)로 변경되었습니다.</p>
	<p>{{.SiteName}}</p>
</body>
</html>`,
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

func formatWon(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, d)
	}
	return sign + string(out) + "원"
}

type sendGridMailer struct {
	cfg config.EmailConfig
}

func (m *sendGridMailer) Send(to, subject, htmlBody string) error {
	from := mail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), "", htmlBody)

	resp, err := sendgrid.NewSendClient(m.cfg.SendGridAPIKey).Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send failed with status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type smtpMailer struct {
	cfg config.EmailConfig
}

func (m *smtpMailer) Send(to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		m.cfg.FromName, m.cfg.FromEmail, to, subject, htmlBody))

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	return smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{to}, msg)
}

// logMailer is used when no mail backend is configured.
type logMailer struct{}

func (logMailer) Send(to, subject, _ string) error {
	logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email not configured, skipping delivery")
	return nil
}
