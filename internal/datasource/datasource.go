// Package datasource fetches Tesouro Direto quotes and Brazilian macro data.
// It implements sources for the Tesouro Transparente CSV, the Investidor10
// catalog page, BCB SGS series, the BCB Focus survey and BCB news feeds,
// plus the normalization of raw quotes into the bond catalog.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medicech/tesouro-quant/internal/config"
	"github.com/medicech/tesouro-quant/internal/infra"
	"github.com/medicech/tesouro-quant/internal/logging"
)

// --- Sentinel errors ---

// ErrNoData is returned when a source answered but carried no usable rows.
var ErrNoData = errors.New("no data returned by source")

// ErrMissingColumns is returned when a tabular payload lacks required columns.
var ErrMissingColumns = errors.New("required columns missing")

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// RawOffer is one quote row as published by a source, before normalization.
// Missing numeric fields hold NaN.
type RawOffer struct {
	Title         string
	BaseDate      time.Time
	MaturityDate  time.Time
	BuyRate       float64 // % a.a.
	SellRate      float64 // % a.a.
	BuyPrice      float64
	SellPrice     float64
	BasePrice     float64
	MinInvestment float64
}

// newRawOffer returns a RawOffer with every numeric field set to NaN.
func newRawOffer(title string) RawOffer {
	nan := math.NaN()
	return RawOffer{
		Title:         title,
		BuyRate:       nan,
		SellRate:      nan,
		BuyPrice:      nan,
		SellPrice:     nan,
		BasePrice:     nan,
		MinInvestment: nan,
	}
}

// --- Shared HTTP client helpers ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Client bundles the HTTP plumbing shared by every source: one http.Client,
// one outbound rate limiter and one payload cache.
type Client struct {
	HTTP    *http.Client
	Limiter *infra.RateLimiter
	Cache   *infra.Cache
	Log     logrus.FieldLogger
}

// NewClient builds a Client from the sources configuration.
func NewClient(cfg config.SourcesConfig, log logrus.FieldLogger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		Limiter: infra.NewPerSecond(cfg.RequestsPerSecond),
		Cache:   infra.NewCache(cfg.CacheDuration()),
		Log:     logging.OrDiscard(log),
	}
}

// NewTestClient returns an unlimited, uncached Client, for tests and tools.
func NewTestClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTP: httpClient, Log: logging.Discard()}
}

// get waits for the limiter and performs a GET request.
// The caller is responsible for closing the returned ReadCloser.
func (c *Client) get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	body, status, err := doGet(ctx, c.HTTP, url, headers)
	c.logger().WithFields(logrus.Fields{
		"url":     url,
		"status":  status,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("source request")
	return body, err
}

func (c *Client) logger() logrus.FieldLogger {
	return logging.OrDiscard(c.Log)
}

// doGet performs a GET request with the given URL and headers, returning the response body.
// The caller is responsible for closing the returned ReadCloser.
func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	// Set default headers.
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	// Override/add custom headers.
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp.StatusCode, nil
}
