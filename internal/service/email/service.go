// internal/service/email/service.go
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// EmailSender delivers outgoing mail via SMTP. When no SMTP host is
// configured it degrades to logging the message, which keeps local
// development usable without a mail account.
type EmailSender struct {
	smtpHost string
	smtpPort string
	username string
	password string
	fromName string
	secure   bool
	logger   *zap.Logger
}

func NewEmailSender(host, port, user, pass, fromName string, secure bool, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		smtpHost: host,
		smtpPort: port,
		username: user,
		password: pass,
		fromName: fromName,
		secure:   secure,
		logger:   logger,
	}
}

// SendConfirmation mails the email-confirmation link for a fresh sign-up.
func (e *EmailSender) SendConfirmation(to, username, confirmURL string) error {
	subject := "Confirm your email"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Welcome to Questa. Confirm your email to activate your account:</p>"+
			"<p><a href=\"%s\">%s</a></p>"+
			"<p>If you did not sign up, you can ignore this message.</p>",
		username, confirmURL, confirmURL,
	)
	return e.send(to, subject, body)
}

func (e *EmailSender) send(to, subject, bodyHTML string) error {
	if e.smtpHost == "" {
		e.logger.Info("smtp not configured, logging email instead",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("body", bodyHTML),
		)
		return nil
	}

	from := fmt.Sprintf("%s <%s>", e.fromName, e.username)
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			bodyHTML,
	)

	serverAddr := e.smtpHost + ":" + e.smtpPort
	auth := smtp.PlainAuth("", e.username, e.password, e.smtpHost)

	if !e.secure {
		// Port 587 - STARTTLS
		if err := smtp.SendMail(serverAddr, auth, e.username, []string{to}, msg); err != nil {
			return fmt.Errorf("send mail failed: %w", err)
		}
		return nil
	}

	// Port 465 - implicit TLS
	conn, err := tls.Dial("tcp", serverAddr, &tls.Config{ServerName: e.smtpHost})
	if err != nil {
		return fmt.Errorf("tls dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("smtp client failed: %w", err)
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}
	if err := client.Mail(e.username); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body failed: %w", err)
	}
	return w.Close()
}
