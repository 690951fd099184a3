package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
)

// maxFallbackDays is how far back a rate lookup walks over weekends and holidays.
const maxFallbackDays = 7

// ecbResponse is the part of the ECB SDMX jsondata payload we read.
type ecbResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
}

// ExchangeRateProcessor converts amounts between currencies using ECB reference
// rates (quoted per EUR) at a given date.
type ExchangeRateProcessor struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
	now     func() time.Time
}

func NewExchangeRateProcessor(baseURL string, client *http.Client) *ExchangeRateProcessor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ExchangeRateProcessor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   cache.New(24*time.Hour, 48*time.Hour),
		now:     time.Now,
	}
}

// Convert expresses amount, given in currency `from`, in currency `to` using the
// rates of date (or the closest earlier business day).
func (p *ExchangeRateProcessor) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to || from == "" {
		return amount, nil
	}
	fromRate, err := p.GetExchangeRate(ctx, from, date)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := p.GetExchangeRate(ctx, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

// GetExchangeRate returns how many units of currency one EUR buys on date.
// Past days are cached; today's rate is always fetched since the ECB publishes it
// during the day. Days without a published rate fall back to the previous day.
func (p *ExchangeRateProcessor) GetExchangeRate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if currency == "EUR" {
		return decimal.NewFromInt(1), nil
	}

	day := date.UTC().Format("2006-01-02")
	cacheable := day < p.now().UTC().Format("2006-01-02")
	cacheKey := fmt.Sprintf("rate-%s-%s", currency, day)
	if cacheable {
		if rate, found := p.cache.Get(cacheKey); found {
			return rate.(decimal.Decimal), nil
		}
	}

	for i := 0; i < maxFallbackDays; i++ {
		dateStr := date.AddDate(0, 0, -i).Format("2006-01-02")
		rate, err := p.fetchRate(ctx, currency, dateStr)
		if err != nil {
			if ctx.Err() != nil {
				return decimal.Zero, fmt.Errorf("%w: %v", models.ErrNetwork, ctx.Err())
			}
			logger.L.Debug("No exchange rate for date, trying previous day", "currency", currency, "date", dateStr, "error", err)
			continue
		}
		if cacheable {
			p.cache.Set(cacheKey, rate, cache.DefaultExpiration)
		}
		return rate, nil
	}

	return decimal.Zero, fmt.Errorf("%w: exchange rate not found for %s on or before %s", models.ErrPriceUnavailable, currency, date.Format("2006-01-02"))
}

func (p *ExchangeRateProcessor) fetchRate(ctx context.Context, currency, day string) (decimal.Decimal, error) {
	// Key structure is D.{CURRENCY}.EUR.SP00.A for daily rates vs Euro
	url := fmt.Sprintf("%s/service/data/EXR/D.%s.EUR.SP00.A?startPeriod=%s&endPeriod=%s&format=jsondata",
		p.baseURL, currency, day, day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		logger.L.Warn("Failed to make ECB API request", "url", url, "error", err)
		return decimal.Zero, fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	// 404 means no data for this day (weekend/holiday).
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("ECB API returned status %s", resp.Status)
	}

	var data ecbResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return decimal.Zero, fmt.Errorf("decode ECB response: %w", err)
	}
	return extractRateFromResponse(data)
}

// extractRateFromResponse navigates the ECB JSON structure to find the rate.
func extractRateFromResponse(data ecbResponse) (decimal.Decimal, error) {
	if len(data.DataSets) == 0 {
		return decimal.Zero, fmt.Errorf("no dataSets in response")
	}
	// The series key is "0:0:0:0:0". We iterate to be safe.
	for _, series := range data.DataSets[0].Series {
		if observations, ok := series.Observations["0"]; ok && len(observations) > 0 {
			rate := decimal.NewFromFloat(observations[0])
			if rate.IsPositive() {
				return rate, nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("observation value not found in the expected structure")
}
