package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	xcurrency "golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"

	"github.com/costwatch/costwatch/internal/types"
)

// All spend is reported in Japanese yen regardless of the unit the billing
// service quotes.
const targetCurrency = "JPY"

const defaultEndpoint = "https://open.er-api.com"

type CurrencyService struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	printer    *message.Printer

	// Exchange rates are fetched once per source unit per invocation;
	// concurrent line item conversions of the same unit share one fetch.
	group singleflight.Group
	mu    sync.Mutex
	rates map[string]float64
}

type CurrencyServiceOpts struct {
	// Endpoint overrides the exchange rate API base URL.
	Endpoint string
	// RequestsPerSecond throttles rate fetches. Free exchange rate APIs
	// reject bursty clients.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

func NewCurrencyService(opts CurrencyServiceOpts) *CurrencyService {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	requestsPerSecond := opts.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &CurrencyService{
		endpoint:   endpoint,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		printer:    message.NewPrinter(language.Japanese),
		rates:      map[string]float64{},
	}
}

type ratesResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Convert converts amount from the given ISO currency unit into yen and
// formats it with Japanese locale conventions, e.g. "¥1,234,568".
func (cs *CurrencyService) Convert(ctx context.Context, amount float64, unit string) (string, error) {
	if _, err := xcurrency.ParseISO(unit); err != nil {
		return "", fmt.Errorf("%w: unsupported currency unit %q", types.ErrConversionFailed, unit)
	}

	exchangeRate, err := cs.rateFor(ctx, unit)
	if err != nil {
		return "", err
	}

	converted := int64(math.Round(amount * exchangeRate))

	return cs.printer.Sprintf("¥%d", converted), nil
}

func (cs *CurrencyService) rateFor(ctx context.Context, unit string) (float64, error) {
	cs.mu.Lock()
	if cached, ok := cs.rates[unit]; ok {
		cs.mu.Unlock()
		return cached, nil
	}
	cs.mu.Unlock()

	value, err, _ := cs.group.Do(unit, func() (any, error) {
		exchangeRate, err := cs.fetchRate(ctx, unit)
		if err != nil {
			return nil, err
		}

		cs.mu.Lock()
		cs.rates[unit] = exchangeRate
		cs.mu.Unlock()

		return exchangeRate, nil
	})
	if err != nil {
		return 0, err
	}

	return value.(float64), nil
}

func (cs *CurrencyService) fetchRate(ctx context.Context, unit string) (float64, error) {
	if err := cs.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrConversionFailed, err)
	}

	url := fmt.Sprintf("%s/v6/latest/%s", cs.endpoint, unit)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrConversionFailed, err)
	}

	response, err := cs.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrConversionFailed, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		io.Copy(io.Discard, response.Body)
		return 0, fmt.Errorf("%w: exchange rate service returned status %d for %s", types.ErrConversionFailed, response.StatusCode, unit)
	}

	var rates ratesResponse
	if err := json.NewDecoder(response.Body).Decode(&rates); err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrConversionFailed, err)
	}

	exchangeRate, ok := rates.Rates[targetCurrency]
	if !ok {
		return 0, fmt.Errorf("%w: no %s rate available for %s", types.ErrConversionFailed, targetCurrency, unit)
	}

	return exchangeRate, nil
}
