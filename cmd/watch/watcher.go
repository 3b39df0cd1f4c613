package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/costwatch/costwatch/internal/client"
	"github.com/costwatch/costwatch/internal/services/cost"
	"github.com/costwatch/costwatch/internal/services/currency"
	"github.com/costwatch/costwatch/internal/services/identity"
	"github.com/costwatch/costwatch/internal/services/secrets"
	"github.com/costwatch/costwatch/internal/services/slack"
	"github.com/costwatch/costwatch/internal/types"
)

type SecretsService interface {
	GetWebhookURL(ctx context.Context) (string, error)
	GetAccountTargets(ctx context.Context) ([]types.AccountTarget, error)
}

type CostService interface {
	GetCost(ctx context.Context) (*types.CostSummary, error)
}

type IdentityService interface {
	GetAliasName(ctx context.Context) (string, bool, error)
	GetAccountID(ctx context.Context) (string, error)
}

type SlackService interface {
	Notify(ctx context.Context, webhookURL string, message types.NotificationMessage) error
}

// AccountServices bundles the services built from one target's credentials.
type AccountServices struct {
	Cost     CostService
	Identity IdentityService
}

// AccountServicesFactory builds per-target services. An empty credential
// pair means the invocation account itself.
type AccountServicesFactory func(ctx context.Context, creds types.AccountCredentials) (*AccountServices, error)

type Watcher struct {
	secretsService     SecretsService
	slackService       SlackService
	newAccountServices AccountServicesFactory
}

func NewWatcher(secretsService SecretsService, slackService SlackService, factory AccountServicesFactory) *Watcher {
	return &Watcher{
		secretsService:     secretsService,
		slackService:       slackService,
		newAccountServices: factory,
	}
}

type WatcherOpts struct {
	SSMPrefix        string
	Region           string
	ExchangeEndpoint string
}

// NewDefaultWatcher wires the production AWS clients and services. The
// currency service (and its per-invocation rate cache) is shared across all
// targets of one run.
func NewDefaultWatcher(opts WatcherOpts) (*Watcher, error) {
	ssmClient, err := client.NewSSMClient(opts.Region)
	if err != nil {
		return nil, err
	}

	secretsService := secrets.NewSecretsService(ssmClient, secrets.SecretsServiceOpts{Prefix: opts.SSMPrefix})
	currencyService := currency.NewCurrencyService(currency.CurrencyServiceOpts{Endpoint: opts.ExchangeEndpoint})
	slackService := slack.NewSlackService(nil)

	factory := func(ctx context.Context, creds types.AccountCredentials) (*AccountServices, error) {
		cfg, err := client.NewTargetConfig(ctx, opts.Region, creds)
		if err != nil {
			return nil, err
		}

		return &AccountServices{
			Cost:     cost.NewCostService(client.NewCostExplorerClient(cfg), currencyService),
			Identity: identity.NewIdentityService(client.NewIAMClient(cfg), client.NewSTSClient(cfg)),
		}, nil
	}

	return NewWatcher(secretsService, slackService, factory), nil
}

// Run executes one watch invocation: resolve the webhook, enumerate targets,
// gather every account's report concurrently, then notify sequentially in
// target order so messages land in the channel deterministically.
func (w *Watcher) Run(ctx context.Context) error {
	webhookURL, err := w.secretsService.GetWebhookURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve webhook url: %w", err)
	}

	targets, err := w.secretsService.GetAccountTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate target accounts: %w", err)
	}

	if len(targets) == 0 {
		slog.Info("ℹ️ no target accounts configured, reporting on the invocation account")
		targets = []types.AccountTarget{{}}
	}

	reports := make([]*accountReport, len(targets))

	var wg sync.WaitGroup
	errChan := make(chan error, len(targets))

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target types.AccountTarget) {
			defer wg.Done()
			report, err := w.collectAccount(ctx, target)
			if err != nil {
				errChan <- fmt.Errorf("failed to collect costs for account %q: %w", target.Name, err)
				return
			}
			reports[i] = report
		}(i, target)
	}

	wg.Wait()
	close(errChan)

	// Check for any errors
	for err := range errChan {
		if err != nil {
			return err
		}
	}

	for _, report := range reports {
		message := buildMessage(report)
		if err := w.slackService.Notify(ctx, webhookURL, message); err != nil {
			return fmt.Errorf("failed to notify for account %q: %w", report.displayName, err)
		}
		slog.Info("📨 posted cost report", "account", report.displayName, "total", report.summary.TotalFormatted)
	}

	return nil
}

type accountReport struct {
	displayName string
	summary     *types.CostSummary
}

// collectAccount fetches one target's cost summary and alias concurrently.
func (w *Watcher) collectAccount(ctx context.Context, target types.AccountTarget) (*accountReport, error) {
	services, err := w.newAccountServices(ctx, target.Credentials)
	if err != nil {
		return nil, err
	}

	var (
		summary  *types.CostSummary
		alias    string
		hasAlias bool
	)

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := services.Cost.GetCost(ctx)
		if err != nil {
			errChan <- err
			return
		}
		summary = result
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		name, ok, err := services.Identity.GetAliasName(ctx)
		if err != nil {
			errChan <- err
			return
		}
		alias, hasAlias = name, ok
	}()

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	displayName := target.Name
	if hasAlias {
		displayName = alias
	}
	if displayName == "" {
		// single-account mode has no logical name to fall back to
		accountID, err := services.Identity.GetAccountID(ctx)
		if err != nil {
			slog.Warn("⚠️ failed to resolve account id", "error", err)
			accountID = "unknown account"
		}
		displayName = accountID
	}

	return &accountReport{
		displayName: displayName,
		summary:     summary,
	}, nil
}

func buildMessage(report *accountReport) types.NotificationMessage {
	summary := report.summary

	headline := fmt.Sprintf("%s @%s〜%s\n💰 %s ($%s)",
		report.displayName,
		summary.PeriodStart,
		summary.PeriodEnd,
		summary.TotalFormatted,
		formatRawAmount(summary.TotalAmount),
	)

	fields := make([]types.Field, 0, len(summary.LineItems))
	for _, item := range summary.LineItems {
		fields = append(fields, types.Field{
			Title: item.Label,
			Value: fmt.Sprintf("%s ($%s)", item.AmountFormatted, formatRawAmount(item.AmountRaw)),
		})
	}

	return types.NotificationMessage{
		Headline: headline,
		Fields:   fields,
	}
}

func formatRawAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
