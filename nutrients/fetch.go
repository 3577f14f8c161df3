package nutrients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is used for the spans and instruments emitted by this package.
const TracerName = "nutrients-fetcher"

const (
	defaultUserAgent   = "NutriAgent/1.0"
	defaultCountry     = "us"
	defaultEnvironment = "net"
	defaultPageSize    = 20

	// Lowest timeout the Open Food Facts search endpoint reliably answers within.
	defaultTimeout = 10 * time.Second

	// Public credentials of the Open Food Facts staging (".net") environment.
	stagingUsername = "off"
	stagingPassword = "off"
)

var (
	ErrEmptySearchTerm  = errors.New("empty search term")
	ErrUnexpectedStatus = errors.New("unexpected status from product search")
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherOpts configures the product search. Zero values fall back to the public
// staging deployment for the US.
type FetcherOpts struct {
	// BaseURL overrides the URL derived from Country and Environment.
	BaseURL     string
	UserAgent   string
	Country     string
	Environment string
	Username    string
	Password    string
	PageSize    int
	Timeout     time.Duration
	HTTPClient  doer
}

// Fetcher retrieves the nutriments of the best matching product for a search term.
type Fetcher struct {
	baseURL   string
	userAgent string
	username  string
	password  string
	pageSize  int
	timeout   time.Duration
	client    doer

	tracer   trace.Tracer
	fetches  metric.Int64Counter
	duration metric.Float64Histogram
}

func NewFetcher(opts FetcherOpts) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Country == "" {
		opts.Country = defaultCountry
	}
	if opts.Environment == "" {
		opts.Environment = defaultEnvironment
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Environment == "net" && opts.Username == "" && opts.Password == "" {
		opts.Username, opts.Password = stagingUsername, stagingPassword
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.openfoodfacts.%s", opts.Country, opts.Environment)
	}

	meter := otel.Meter(TracerName)
	fetches, _ := meter.Int64Counter("nutrients_fetch_total",
		metric.WithDescription("Total number of product nutrient fetches by outcome"))
	duration, _ := meter.Float64Histogram("nutrients_fetch_duration_seconds",
		metric.WithDescription("Duration of product nutrient fetches in seconds"))

	return &Fetcher{
		baseURL:   baseURL,
		userAgent: opts.UserAgent,
		username:  opts.Username,
		password:  opts.Password,
		pageSize:  opts.PageSize,
		timeout:   opts.Timeout,
		client:    opts.HTTPClient,
		tracer:    otel.Tracer(TracerName),
		fetches:   fetches,
		duration:  duration,
	}
}

// Fetch returns the nutriments of the first product matching term. It never fails: no
// products, no nutriments and request errors all produce an empty Flat.
func (f *Fetcher) Fetch(ctx context.Context, term string) *Flat {
	flat, _, _ := f.FetchWithOutcome(ctx, term)
	return flat
}

// FetchWithOutcome is Fetch with diagnostics: it reports which case produced the result
// and the error that was swallowed, if any. The returned Flat is never nil.
func (f *Fetcher) FetchWithOutcome(ctx context.Context, term string) (*Flat, Outcome, error) {
	ctx, span := f.tracer.Start(ctx, "Fetcher.Fetch", trace.WithAttributes(
		attribute.String("search_term", term),
	))
	defer span.End()

	start := time.Now()
	flat, outcome, err := f.fetch(ctx, term)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(attribute.String("outcome", outcome.String()))
	f.fetches.Add(ctx, 1, attrs)
	f.duration.Record(ctx, elapsed.Seconds(), attrs)
	span.SetAttributes(
		attribute.String("outcome", outcome.String()),
		attribute.Int("nutriments_count", flat.Len()),
	)

	switch outcome {
	case OutcomeFound:
		slog.Info("FETCHER: Nutriments found for product", "search_term", term, "nutriments_count", flat.Len())
	case OutcomeNoNutriments:
		slog.Info("FETCHER: No nutriments found for product", "search_term", term)
	case OutcomeNoProducts:
		slog.Info("FETCHER: No products found in search result", "search_term", term)
	case OutcomeFailed:
		span.SetStatus(codes.Error, "product search failed")
		span.RecordError(err)
		slog.Error("FETCHER: Error searching products", "search_term", term, "error", err)
	}
	slog.Info("FETCHER: API call finished", "search_term", term, "elapsed_ms", elapsed.Milliseconds())

	return flat, outcome, err
}

type searchResponse struct {
	Count    int `json:"count"`
	Products []struct {
		Code       string `json:"code"`
		Name       string `json:"product_name"`
		Nutriments *Flat  `json:"nutriments"`
	} `json:"products"`
}

func (f *Fetcher) fetch(ctx context.Context, term string) (*Flat, Outcome, error) {
	if strings.TrimSpace(term) == "" {
		return NewFlat(), OutcomeFailed, ErrEmptySearchTerm
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.newSearchRequest(ctx, term)
	if err != nil {
		return NewFlat(), OutcomeFailed, fmt.Errorf("build search request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return NewFlat(), OutcomeFailed, fmt.Errorf("search products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewFlat(), OutcomeFailed, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return NewFlat(), OutcomeFailed, fmt.Errorf("decode search response: %w", err)
	}

	if len(sr.Products) == 0 {
		return NewFlat(), OutcomeNoProducts, nil
	}

	first := sr.Products[0]
	slog.Debug("FETCHER: Using first product", "search_term", term, "count", sr.Count, "code", first.Code, "product_name", first.Name)
	if first.Nutriments == nil {
		return NewFlat(), OutcomeNoNutriments, nil
	}
	return first.Nutriments, OutcomeFound, nil
}

func (f *Fetcher) newSearchRequest(ctx context.Context, term string) (*http.Request, error) {
	params := url.Values{}
	params.Set("search_terms", term)
	params.Set("page", "1")
	params.Set("page_size", strconv.Itoa(f.pageSize))
	params.Set("json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/cgi/search.pl?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")
	if f.username != "" || f.password != "" {
		req.SetBasicAuth(f.username, f.password)
	}
	return req, nil
}
