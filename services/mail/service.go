package mail

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	"path/filepath"
	textTemplate "text/template"
	"time"

	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/magiclink"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type Service struct {
	config        *config.MailConfig
	appName       string
	client        *mail.Client
	htmlTemplates *htmlTemplate.Template
	textTemplates *textTemplate.Template
	logger        *logging.Service
}

type TemplateData map[string]any

func NewService(cfg *config.MailConfig, appName string, logger *logging.Service) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("TL_MAIL_FROM_ADDRESS is required")
	}

	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username))
	}
	if cfg.Password != "" {
		clientOpts = append(clientOpts, mail.WithPassword(cfg.Password))
	}

	switch cfg.Encryption {
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		if logger != nil {
			logger.Error("failed to create mail client",
				zap.Error(err),
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port))
		}
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	service := &Service{
		config:  cfg,
		appName: appName,
		client:  client,
		logger:  logger,
	}

	if err := service.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	return service, nil
}

func (s *Service) loadTemplates() error {
	if s.config.TemplatesDir == "" {
		return nil
	}

	htmlPattern := filepath.Join(s.config.TemplatesDir, "*.html")
	textPattern := filepath.Join(s.config.TemplatesDir, "*.txt")

	var err error
	s.htmlTemplates, err = htmlTemplate.ParseGlob(htmlPattern)
	if err != nil && err.Error() != "template: pattern matches no files: "+htmlPattern {
		return fmt.Errorf("failed to parse HTML templates: %w", err)
	}

	s.textTemplates, err = textTemplate.ParseGlob(textPattern)
	if err != nil && err.Error() != "template: pattern matches no files: "+textPattern {
		return fmt.Errorf("failed to parse text templates: %w", err)
	}

	return nil
}

// SendMagicLink delivers a login or signup link. Implements
// magiclink.Sender.
func (s *Service) SendMagicLink(email, linkURL string, linkType magiclink.LinkType, expiresAt time.Time) error {
	subject := "Your Tasklinker login link"
	templateName := "magic_link_login"
	if linkType == magiclink.LinkTypeSignup {
		subject = "Finish creating your Tasklinker account"
		templateName = "magic_link_signup"
	}

	data := TemplateData{
		"Email":     email,
		"LinkURL":   linkURL,
		"ExpiresAt": expiresAt.Format(time.RFC1123),
		"AppName":   s.appName,
	}

	return s.SendTemplate(templateName, []string{email}, subject, data)
}

func (s *Service) SendTemplate(templateName string, to []string, subject string, data TemplateData) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.config.FromName, s.config.FromAddress); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)

	rendered := false

	if s.textTemplates != nil {
		if tmpl := s.textTemplates.Lookup(templateName + ".txt"); tmpl != nil {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return fmt.Errorf("failed to render text template %q: %w", templateName, err)
			}
			msg.SetBodyString(mail.TypeTextPlain, buf.String())
			rendered = true
		}
	}

	if s.htmlTemplates != nil {
		if tmpl := s.htmlTemplates.Lookup(templateName + ".html"); tmpl != nil {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return fmt.Errorf("failed to render HTML template %q: %w", templateName, err)
			}
			if rendered {
				msg.AddAlternativeString(mail.TypeTextHTML, buf.String())
			} else {
				msg.SetBodyString(mail.TypeTextHTML, buf.String())
				rendered = true
			}
		}
	}

	if !rendered {
		msg.SetBodyString(mail.TypeTextPlain, fallbackBody(data))
	}

	if err := s.client.DialAndSend(msg); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send mail",
				zap.Error(err),
				zap.String("template", templateName),
				zap.Strings("to", to))
		}
		return fmt.Errorf("failed to send mail: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("mail sent",
			zap.String("template", templateName),
			zap.Strings("to", to))
	}
	return nil
}

func fallbackBody(data TemplateData) string {
	if url, ok := data["LinkURL"].(string); ok {
		return fmt.Sprintf("Follow this link to continue: %s\n\nThe link expires at %v.", url, data["ExpiresAt"])
	}
	return "Please see your account for details."
}
