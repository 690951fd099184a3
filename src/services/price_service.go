// src/services/price_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
	"golang.org/x/net/publicsuffix"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// defaultCookieURLs are visited before asking for a crumb so the jar holds the
// consent cookies the quote API checks.
var defaultCookieURLs = []string{"https://fc.yahoo.com", "https://finance.yahoo.com"}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// PriceServiceOptions configures the quote client.
type PriceServiceOptions struct {
	BaseURL    string
	Currency   string
	Timeout    time.Duration
	CookieURLs []string
	// FX converts quotes listed in another currency; may be nil.
	FX CurrencyConverter
}

type priceServiceImpl struct {
	httpClient  http.Client
	baseURL     string
	currency    string
	cookieURLs  []string
	fx          CurrencyConverter
	initialized bool
	crumb       string
	mu          sync.Mutex
}

// NewPriceService returns a PriceOracle backed by a Yahoo-style chart API. Quotes
// are fetched on every call: nothing is cached and failed calls are not retried.
func NewPriceService(opts PriceServiceOptions) PriceOracle {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.CookieURLs == nil {
		opts.CookieURLs = defaultCookieURLs
	}

	return &priceServiceImpl{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
		},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		currency:   strings.ToUpper(opts.Currency),
		cookieURLs: opts.CookieURLs,
		fx:         opts.FX,
	}
}

func (s *priceServiceImpl) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// ensureSession fetches a crumb once per session. A 401 on a quote resets it.
func (s *priceServiceImpl) ensureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized && s.crumb != "" {
		return nil
	}

	logger.L.Debug("Initializing quote session and fetching crumb")
	for _, u := range s.cookieURLs {
		req, err := s.newRequest(ctx, u)
		if err != nil {
			continue
		}
		if resp, err := s.httpClient.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, err := s.newRequest(ctx, s.baseURL+"/v1/test/getcrumb")
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch crumb: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: crumb request returned %s", models.ErrAuth, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read crumb: %v", models.ErrNetwork, err)
	}
	s.crumb = strings.TrimSpace(string(body))
	s.initialized = s.crumb != ""
	if !s.initialized {
		return fmt.Errorf("%w: empty crumb", models.ErrAuth)
	}
	logger.L.Debug("Quote session initialized")
	return nil
}

func (s *priceServiceImpl) resetSession() {
	s.mu.Lock()
	s.initialized = false
	s.crumb = ""
	s.mu.Unlock()
}

// Ticker maps an asset symbol to the quote ticker in the reference currency.
func (s *priceServiceImpl) Ticker(symbol string) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(symbol), s.currency)
}

// CurrentPrice returns the latest market price of symbol in the reference currency.
func (s *priceServiceImpl) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := s.ensureSession(ctx); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	crumb := s.crumb
	s.mu.Unlock()

	ticker := s.Ticker(symbol)
	quoteURL := fmt.Sprintf("%s/v8/finance/chart/%s?crumb=%s", s.baseURL, url.PathEscape(ticker), url.QueryEscape(crumb))
	req, err := s.newRequest(ctx, quoteURL)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to call chart API: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		s.resetSession()
		return decimal.Zero, fmt.Errorf("%w: status %d - crumb invalid", models.ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: chart API returned non-OK status %d", models.ErrNetwork, resp.StatusCode)
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to decode chart response: %v", models.ErrNetwork, err)
	}
	if chartData.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("chart API returned an error: %v", chartData.Chart.Error)
	}
	if len(chartData.Chart.Result) == 0 || chartData.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return decimal.Zero, fmt.Errorf("no price data found for %s", ticker)
	}

	meta := chartData.Chart.Result[0].Meta
	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	quoted := strings.ToUpper(meta.Currency)
	if quoted != "" && quoted != s.currency {
		if s.fx == nil {
			return decimal.Zero, fmt.Errorf("quote for %s is in %s, not %s", ticker, quoted, s.currency)
		}
		converted, err := s.fx.Convert(ctx, price, quoted, s.currency, time.Now())
		if err != nil {
			return decimal.Zero, fmt.Errorf("could not convert %s quote to %s: %w", quoted, s.currency, err)
		}
		price = converted
	}
	return price, nil
}
