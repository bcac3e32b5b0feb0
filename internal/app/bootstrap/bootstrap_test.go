package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
	"github.com/wolfman30/cashoffer-funnel/internal/conversion"
	"github.com/wolfman30/cashoffer-funnel/internal/crm"
	"github.com/wolfman30/cashoffer-funnel/internal/ledger"
	"github.com/wolfman30/cashoffer-funnel/internal/notify"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		RateLimitBackend:            "memory",
		RateLimitWindow:             time.Minute,
		RateLimitCapacity:           5,
		ConversionRateLimitCapacity: 10,
		ConversionBackend:           "memory",
		ConversionSessionTTL:        time.Hour,
		LedgerBackend:               "memory",
		CRMBaseURL:                  "https://crm.example.com/v1",
		CRMTimeout:                  time.Second,
		WebhookTimeout:              time.Second,
	}
}

func TestBuildRedisClient(t *testing.T) {
	logger := logging.Discard()
	assert.Nil(t, BuildRedisClient(context.Background(), nil, logger, true))

	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logger, true)
	require.NotNil(t, client)
	_ = client.Close()

	cfg.RedisAddr = "127.0.0.1:1"
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logger, true))
}

func TestBuildRateLimitersMemory(t *testing.T) {
	cfg := testConfig()
	limiters := BuildRateLimiters(cfg, nil, logging.Discard())
	defer limiters.Close()

	assert.Equal(t, 5, limiters.Leads.Capacity())
	assert.Equal(t, 10, limiters.Conversions.Capacity())
	assert.True(t, limiters.Leads.Check(context.Background(), "1.2.3.4").Allowed)
}

func TestBuildRateLimitersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RateLimitBackend = "redis"
	cfg.RateLimitCapacity = 1
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), false)
	defer client.Close()

	limiters := BuildRateLimiters(cfg, client, logging.Discard())
	defer limiters.Close()
	ctx := context.Background()
	assert.True(t, limiters.Leads.Check(ctx, "ip").Allowed)
	assert.False(t, limiters.Leads.Check(ctx, "ip").Allowed)
	assert.True(t, limiters.Conversions.Check(ctx, "ip").Allowed)
	assert.NotEmpty(t, mr.Keys())
}

func TestBuildConversionStore(t *testing.T) {
	cfg := testConfig()
	_, isMem := BuildConversionStore(cfg, nil, logging.Discard()).(*conversion.MemoryStore)
	assert.True(t, isMem)

	mr := miniredis.RunT(t)
	cfg.ConversionBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	assert.True(t, NeedsRedis(cfg))
	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), false)
	defer client.Close()
	_, isRedis := BuildConversionStore(cfg, client, logging.Discard()).(*conversion.RedisStore)
	assert.True(t, isRedis)
}

func TestBuildLedgerStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	store, err := BuildLedgerStore(ctx, cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &ledger.MemoryStore{}, store)

	cfg.LedgerBackend = "postgres"
	_, err = BuildLedgerStore(ctx, cfg, nil, logging.Discard())
	assert.Error(t, err)

	cfg.LedgerBackend = "sheets"
	_, err = BuildLedgerStore(ctx, cfg, nil, logging.Discard())
	assert.Error(t, err, "spreadsheet id is required")

	cfg.LedgerBackend = "csv"
	_, err = BuildLedgerStore(ctx, cfg, nil, logging.Discard())
	assert.Error(t, err)
}

func TestBuildCRM(t *testing.T) {
	cfg := testConfig()
	store, err := BuildCRM(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &crm.MemoryStore{}, store)

	cfg.CRMAPIKey = "key"
	store, err = BuildCRM(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &crm.Client{}, store)
}

func TestBuildAlertSenderAndRelay(t *testing.T) {
	cfg := testConfig()
	sender := BuildAlertSender(cfg, nil, logging.Discard())
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	cfg.SendGridAPIKey = "sg"
	cfg.SendGridFromEmail = "leads@example.com"
	assert.IsType(t, &notify.SendGridSender{}, BuildAlertSender(cfg, nil, logging.Discard()))

	r := BuildRelay(cfg, nil, sender, logging.Discard())
	assert.False(t, r.Enabled())
	r.Close()

	cfg.WebhookURL = "https://hooks.example.com/leads"
	cfg.LeadAlertEmail = "sales@example.com"
	r = BuildRelay(cfg, nil, sender, logging.Discard())
	assert.True(t, r.Enabled())
	r.Close()
}
