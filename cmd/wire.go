package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/assistant"
	"github.com/sells-group/lead-concierge/internal/capture"
	"github.com/sells-group/lead-concierge/internal/config"
	"github.com/sells-group/lead-concierge/internal/conversation"
	"github.com/sells-group/lead-concierge/internal/extract"
	"github.com/sells-group/lead-concierge/internal/resilience"
	"github.com/sells-group/lead-concierge/internal/session"
	"github.com/sells-group/lead-concierge/internal/store"
	"github.com/sells-group/lead-concierge/pkg/anthropic"
	"github.com/sells-group/lead-concierge/pkg/hubspot"
	"github.com/sells-group/lead-concierge/pkg/notion"
	"github.com/sells-group/lead-concierge/pkg/salesforce"
)

// env holds the assembled runtime for serve and chat.
type env struct {
	Leads        *store.FileStore
	Ledger       store.Ledger
	Dispatcher   *capture.Dispatcher
	Queue        *capture.Queue
	Sessions     *session.Manager
	Orchestrator *conversation.Orchestrator
}

// Close releases the ledger connection.
func (e *env) Close() {
	if e.Ledger != nil {
		if err := e.Ledger.Close(); err != nil {
			zap.L().Warn("close ledger", zap.Error(err))
		}
	}
}

func contact(c *config.Config) assistant.Contact {
	return assistant.Contact{Name: c.Contact.Name, Phone: c.Contact.Phone, Email: c.Contact.Email}
}

// initLedger opens the configured capture ledger and applies its schema.
// Driver "none" yields a nil ledger.
func initLedger(ctx context.Context, c *config.Config) (store.Ledger, error) {
	var (
		l   store.Ledger
		err error
	)
	switch c.Store.Ledger.Driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		l, err = store.NewSQLite(c.Store.Ledger.DatabaseURL)
	case "postgres":
		l, err = store.NewPostgres(ctx, c.Store.Ledger.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.Ledger.MaxConns,
			MinConns: c.Store.Ledger.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported ledger driver: %s", c.Store.Ledger.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open ledger")
	}
	if err := l.Migrate(ctx); err != nil {
		l.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return l, nil
}

func retryConfig(c *config.Config) resilience.RetryConfig {
	return resilience.FromSettings(c.Capture.MaxAttempts, c.Capture.InitialBackoff, c.Capture.MaxBackoff)
}

func dealConfig(c *config.Config) capture.DealConfig {
	deal := capture.DefaultDealConfig()
	deal.Threshold = c.CRM.DealThreshold
	if c.CRM.DealAmount > 0 {
		deal.Amount = c.CRM.DealAmount
	}
	if c.CRM.DealPipeline != "" {
		deal.Pipeline = c.CRM.DealPipeline
	}
	if c.CRM.DealStage != "" {
		deal.Stage = c.CRM.DealStage
	}
	if c.CRM.DealCloseDays > 0 {
		deal.CloseAfter = time.Duration(c.CRM.DealCloseDays) * 24 * time.Hour
	}
	return deal
}

func emailChannel(c *config.Config) capture.Channel {
	var sender capture.Sender
	switch c.Email.Provider {
	case "smtp":
		sender = capture.NewSMTPSender(c.Email.SMTP.Host, c.Email.SMTP.Port, c.Email.SMTP.Username, c.Email.SMTP.Password)
	case "resend":
		sender = capture.NewResendSender(c.Email.Resend.APIKey)
	}
	from := c.Email.From
	if from == "" {
		from = c.Email.SMTP.Username
	}
	return capture.NewEmailChannel(sender, from, c.Email.To...)
}

func crmChannel(c *config.Config) (capture.Channel, error) {
	deal := dealConfig(c)
	switch c.CRM.Provider {
	case "hubspot":
		var client hubspot.Client
		if c.CRM.HubSpot.Token != "" {
			client = hubspot.NewClient(c.CRM.HubSpot.Token,
				hubspot.WithBaseURL(c.CRM.HubSpot.BaseURL),
				hubspot.WithRateLimit(c.CRM.HubSpot.RPS),
				hubspot.WithRetry(retryConfig(c)),
			)
		}
		return capture.NewHubSpotChannel(client, deal), nil
	case "salesforce":
		sfc := c.CRM.Salesforce
		if sfc.OpportunityStg != "" {
			deal.Stage = sfc.OpportunityStg
		}
		if sfc.ClientID == "" {
			return capture.NewSalesforceChannel(nil, deal), nil
		}
		creds := salesforce.Creds{
			Domain:         sfc.Domain,
			Username:       sfc.Username,
			Password:       sfc.Password,
			SecurityToken:  sfc.SecurityToken,
			ConsumerKey:    sfc.ClientID,
			ConsumerSecret: sfc.ClientSecret,
		}
		if sfc.KeyPath != "" {
			pem, err := os.ReadFile(sfc.KeyPath)
			if err != nil {
				return nil, eris.Wrap(err, "read salesforce JWT private key")
			}
			creds.ConsumerRSAPem = string(pem)
		}
		client, err := salesforce.Connect(creds, salesforce.WithRateLimit(sfc.RPS))
		if err != nil {
			return nil, eris.Wrap(err, "connect salesforce")
		}
		return capture.NewSalesforceChannel(client, deal), nil
	}
	return nil, nil
}

// initChannels builds every delivery channel. Unconfigured channels are
// still returned and report themselves as skipped.
func initChannels(c *config.Config) ([]capture.Channel, error) {
	channels := []capture.Channel{emailChannel(c)}

	crm, err := crmChannel(c)
	if err != nil {
		return nil, err
	}
	if crm != nil {
		channels = append(channels, crm)
	}

	channels = append(channels, capture.NewWebhookChannel(c.Webhook.URL, c.Webhook.Secret,
		capture.WithWebhookTimeout(c.Webhook.Timeout),
		capture.WithWebhookRetry(retryConfig(c)),
	))

	var nc notion.Client
	if c.Notion.Token != "" {
		nc = notion.NewClient(c.Notion.Token)
	}
	channels = append(channels, capture.NewNotionChannel(nc, c.Notion.LeadDB))

	return channels, nil
}

func initExtractor(c *config.Config) (*extract.Extractor, error) {
	if c.Extract.VocabularyPath == "" {
		return extract.New(nil), nil
	}
	v, err := extract.LoadVocabulary(c.Extract.VocabularyPath)
	if err != nil {
		return nil, eris.Wrap(err, "load vocabulary")
	}
	return extract.New(v), nil
}

// initEnv assembles the conversation runtime. The capture queue is created
// but not started.
func initEnv(ctx context.Context, c *config.Config) (*env, error) {
	ledger, err := initLedger(ctx, c)
	if err != nil {
		return nil, err
	}
	e := &env{Leads: store.NewFileStore(c.Store.Dir), Ledger: ledger}

	channels, err := initChannels(c)
	if err != nil {
		e.Close()
		return nil, err
	}
	opts := []capture.Option{capture.WithChannelTimeout(c.Capture.ChannelTimeout)}
	if ledger != nil {
		opts = append(opts, capture.WithLedger(ledger))
	}
	if c.Capture.BreakerThreshold > 0 {
		opts = append(opts, capture.WithBreakers(resilience.NewBreakers(resilience.BreakerConfig{
			Threshold: c.Capture.BreakerThreshold,
			Cooldown:  c.Capture.BreakerCooldown,
		})))
	}
	e.Dispatcher = capture.NewDispatcher(e.Leads, channels, opts...)

	ext, err := initExtractor(c)
	if err != nil {
		e.Close()
		return nil, err
	}

	policy := resilience.DefaultPolicy()
	if c.Anthropic.MaxAttempts > 0 {
		policy.MaxAttempts = c.Anthropic.MaxAttempts
	}
	api := anthropic.NewClient(c.Anthropic.Key, anthropic.WithTimeout(c.Anthropic.Timeout))
	gen := assistant.New(api, assistant.Config{
		Model:       c.Anthropic.Model,
		MaxTokens:   c.Anthropic.MaxTokens,
		Temperature: c.Anthropic.Temperature,
		MinInterval: c.Anthropic.MinInterval,
		Contact:     contact(c),
		Policy:      policy,
	})

	e.Queue = capture.NewQueue(e.Dispatcher, c.Capture.QueueSize)
	e.Sessions = session.NewManager()
	e.Orchestrator = conversation.New(e.Sessions, gen, ext, e.Queue, e.Dispatcher, conversation.Config{
		ContextTurns: c.Session.ContextTurns,
		HistoryCap:   c.Session.HistoryCap,
		Contact:      contact(c),
		Source:       capture.WebhookSource,
	})

	zap.L().Info("runtime ready",
		zap.Strings("channels", e.Dispatcher.Channels()),
		zap.String("ledger", c.Store.Ledger.Driver),
		zap.String("leads_dir", c.Store.Dir),
	)
	return e, nil
}
