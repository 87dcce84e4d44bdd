package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Email provider names accepted in EMAIL_PROVIDER.
const (
	EmailProviderAuto     = "auto"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
	EmailProviderSMTP     = "smtp"
	EmailProviderStub     = "stub"
)

// NeedsSES reports whether BuildEmailSender would use an SES client, so the
// caller only loads AWS config when it matters.
func NeedsSES(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	switch cfg.EmailProvider {
	case EmailProviderSES:
		return true
	case EmailProviderAuto, "":
		return cfg.SendGridAPIKey == "" && cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != ""
	default:
		return false
	}
}

// BuildEmailSender selects the outgoing email provider. It returns the sender
// and the provider name actually used. Misconfigured providers fall back to
// the stub sender with a warning.
func BuildEmailSender(cfg *appconfig.Config, ses *sesv2.Client, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), EmailProviderStub
	}

	sendGrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	sesSender := func() notify.EmailSender {
		if s := notify.NewSESSender(ses, notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	smtp := func() notify.EmailSender {
		if s := notify.NewSMTPSender(notify.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			UseTLS:    cfg.SMTPUseTLS,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}

	var candidates []string
	switch provider := cfg.EmailProvider; provider {
	case EmailProviderAuto, "":
		candidates = []string{EmailProviderSendGrid, EmailProviderSES, EmailProviderSMTP}
	case EmailProviderSendGrid, EmailProviderSES, EmailProviderSMTP:
		candidates = []string{provider}
	case EmailProviderStub:
	default:
		logger.Warn("unknown email provider; using stub", "provider", provider)
	}

	builders := map[string]func() notify.EmailSender{
		EmailProviderSendGrid: sendGrid,
		EmailProviderSES:      sesSender,
		EmailProviderSMTP:     smtp,
	}
	for _, name := range candidates {
		if sender := builders[name](); sender != nil {
			logger.Info("email sender configured", "provider", name)
			return sender, name
		}
		if cfg.EmailProvider == name {
			logger.Warn("email provider missing credentials; using stub", "provider", name)
		}
	}
	return notify.NewStubEmailSender(logger), EmailProviderStub
}

// BuildCalendar returns the Google Calendar client, or nil when credentials
// are incomplete.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.Calendar, error) {
	if cfg == nil || !cfg.GoogleCalendarEnabled() {
		return nil, nil
	}
	cal, err := notify.NewGoogleCalendar(ctx, notify.GoogleCalendarConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
		CalendarID:   cfg.GoogleCalendarID,
		TimeZone:     cfg.ClinicTimezone,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
	}
	if cal == nil {
		return nil, nil
	}
	return cal, nil
}

// ClinicLocation loads CLINIC_TIMEZONE, defaulting to UTC when unset.
func ClinicLocation(cfg *appconfig.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.ClinicTimezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: clinic timezone %q: %w", tz, err)
	}
	return loc, nil
}

// BuildGateway assembles the notification gateway from config.
func BuildGateway(cfg *appconfig.Config, email notify.EmailSender, cal notify.Calendar, logger *logging.Logger) (*notify.Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	loc, err := ClinicLocation(cfg)
	if err != nil {
		return nil, err
	}
	return notify.NewGateway(email, cal, notify.GatewayConfig{
		Clinic: notify.ClinicInfo{
			Name:    cfg.ClinicName,
			Phone:   cfg.ClinicPhone,
			Address: cfg.ClinicAddress,
		},
		DoctorEmails: cfg.DoctorEmails,
		DoctorNames:  cfg.DoctorNames,
		Location:     loc,
	}, logger), nil
}

// QueueBackends carries the optional clients a shared queue can run on.
type QueueBackends struct {
	Redis *redis.Client
	SQS   *sqs.Client
}

// BuildQueue returns the notification queue named by NOTIFY_QUEUE. Shared
// queues need a live client; without one the memory queue is used.
func BuildQueue(cfg *appconfig.Config, backends QueueBackends, logger *logging.Logger) notify.Queue {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewMemoryQueue(0)
	}
	switch cfg.NotifyQueue {
	case "redis":
		if backends.Redis != nil {
			logger.Info("notification queue configured", "backend", "redis", "key", cfg.NotifyQueueKey)
			return notify.NewRedisQueue(backends.Redis, cfg.NotifyQueueKey)
		}
		logger.Warn("redis queue requested but redis is unavailable; using memory queue")
	case "sqs":
		if backends.SQS != nil && cfg.NotifySQSQueueURL != "" {
			logger.Info("notification queue configured", "backend", "sqs", "queue_url", cfg.NotifySQSQueueURL)
			return notify.NewSQSQueue(backends.SQS, cfg.NotifySQSQueueURL)
		}
		logger.Warn("sqs queue requested without a client or NOTIFY_SQS_QUEUE_URL; using memory queue")
	}
	return notify.NewMemoryQueue(cfg.NotifyQueueBuffer)
}

// BuildWorker creates the notification worker draining queue.
func BuildWorker(cfg *appconfig.Config, queue notify.Queue, notifier notify.Notifier, refs notify.RefStore, m *metrics.BookingMetrics, logger *logging.Logger) *notify.Worker {
	var opts []notify.WorkerOption
	if cfg != nil {
		opts = append(opts,
			notify.WithWorkerCount(cfg.NotifyWorkerCount),
			notify.WithPollWait(cfg.NotifyPollInterval),
		)
	}
	return notify.NewWorker(queue, notifier, refs, m, logger, opts...)
}
