package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
	"github.com/wolfman30/cashoffer-funnel/internal/crm"
	"github.com/wolfman30/cashoffer-funnel/internal/leadsync"
	"github.com/wolfman30/cashoffer-funnel/internal/ledger"
	"github.com/wolfman30/cashoffer-funnel/internal/notify"
	"github.com/wolfman30/cashoffer-funnel/internal/relay"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// BuildLedgerStore selects the ledger backend. pool is only consulted for the
// postgres backend.
func BuildLedgerStore(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (ledger.Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.LedgerBackend {
	case "sheets":
		store, err := ledger.NewSheetsStore(ctx, ledger.SheetsConfig{
			SpreadsheetID:   cfg.GoogleSheetsSpreadsheetID,
			SheetName:       cfg.LedgerSheetName,
			CredentialsJSON: cfg.GoogleSheetsCredentialsJSON,
			ClientEmail:     cfg.GoogleSheetsClientEmail,
			PrivateKey:      cfg.GoogleSheetsPrivateKey,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("ledger backed by google sheets", "sheet", cfg.LedgerSheetName)
		return store, nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres ledger requires DATABASE_URL")
		}
		logger.Info("ledger backed by postgres", "table", cfg.LedgerTable)
		return ledger.NewPostgresStore(pool, cfg.LedgerTable), nil
	case "", "memory":
		logger.Warn("ledger kept in memory; rows are lost on restart")
		return ledger.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("bootstrap: unknown ledger backend %q", cfg.LedgerBackend)
}

// BuildCRM returns the contacts API client, or an in-memory stand-in when no
// API key is configured.
func BuildCRM(cfg *appconfig.Config, logger *logging.Logger) (leadsync.CRM, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.CRMAPIKey) == "" {
		logger.Warn("GOHIGHLEVEL_API_KEY not set; CRM contacts kept in memory")
		return crm.NewMemoryStore(), nil
	}
	client, err := crm.New(crm.Config{
		BaseURL:    cfg.CRMBaseURL,
		APIKey:     cfg.CRMAPIKey,
		LocationID: cfg.CRMLocationID,
		Timeout:    cfg.CRMTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// BuildAlertSender prefers SendGrid, then SES, then a logging stub.
func BuildAlertSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		return sender
	}
	if sesClient != nil && strings.TrimSpace(cfg.SESFromEmail) != "" {
		if sender := notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}

// BuildRelay collects the configured sinks. The relay is returned even with
// no sinks; publishing to it is then a no-op.
func BuildRelay(cfg *appconfig.Config, sqsClient *sqs.Client, alerts notify.EmailSender, logger *logging.Logger) *relay.Relay {
	var sinks []relay.Sink
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		sinks = append(sinks, relay.NewWebhookSink(url, cfg.WebhookSecret, &http.Client{Timeout: cfg.WebhookTimeout}))
	}
	if sqsClient != nil && strings.TrimSpace(cfg.LeadEventsQueueURL) != "" {
		sinks = append(sinks, relay.NewSQSSink(sqsClient, cfg.LeadEventsQueueURL))
	}
	if sink := notify.NewLeadAlertSink(alerts, cfg.LeadAlertEmail, logger); sink != nil {
		sinks = append(sinks, sink)
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	if logger != nil {
		logger.Info("lead relay configured", "sinks", names)
	}
	return relay.New(cfg.WebhookTimeout*3, logger, sinks...)
}
