package appstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/appagent/aso/internal/locale"
	"github.com/appagent/aso/pkg/models"
)

// Client configuration constants.
const (
	// MaxSearchRetries is how many times a transient search failure is
	// retried after the initial attempt before giving up.
	MaxSearchRetries = 3

	// RetryDelay is the fixed delay between search retries.
	RetryDelay = 500 * time.Millisecond

	// requestTimeout bounds a single upstream HTTP call.
	requestTimeout = 15 * time.Second
)

// SearchParams identify one store search. The exact tuple is the cache
// key, so two calls with the same params share a cached result.
type SearchParams struct {
	Country  string
	Language string
	Term     string
	Num      int
}

func (p SearchParams) cacheKey() string {
	return fmt.Sprintf("search:%s:%s:%d:%s", p.Country, p.Language, p.Num, strings.ToLower(p.Term))
}

// SearchResult is a ranked result list plus whether it came from cache.
// Callers use CacheHit to decide whether to add inter-request delay.
type SearchResult struct {
	Apps     []models.AppSummary
	CacheHit bool
}

// Client talks to the store search API.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    Cache
	cacheTTL time.Duration
	group    singleflight.Group
	sleep    func(time.Duration)
}

// NewClient creates a search client with the given cache.
func NewClient(baseURL string, cache Cache, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: requestTimeout},
		cache:    cache,
		cacheTTL: cacheTTL,
		sleep:    time.Sleep,
	}
}

// lookupResponse mirrors the iTunes search/lookup API payload shape.
type lookupResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []lookupResult `json:"results"`
}

type lookupResult struct {
	TrackID           int64   `json:"trackId"`
	TrackName         string  `json:"trackName"`
	Description       string  `json:"description"`
	ArtworkURL        string  `json:"artworkUrl100"`
	UserRatingCount   int     `json:"userRatingCount"`
	AverageUserRating float64 `json:"averageUserRating"`
}

func (r lookupResult) toSummary() models.AppSummary {
	return models.AppSummary{
		ID:          strconv.FormatInt(r.TrackID, 10),
		Title:       r.TrackName,
		Description: r.Description,
		Icon:        r.ArtworkURL,
		Reviews:     r.UserRatingCount,
		Score:       r.AverageUserRating,
	}
}

// Search runs a store search scoped to the given country/language,
// returning up to Num ranked app summaries. Results are cached for the
// configured TTL keyed by the exact parameter tuple; concurrent
// identical searches are coalesced.
func (c *Client) Search(ctx context.Context, params SearchParams) (SearchResult, error) {
	if strings.TrimSpace(params.Term) == "" {
		return SearchResult{}, fmt.Errorf("%w: empty search term", models.ErrInvalidInput)
	}
	if params.Num <= 0 {
		params.Num = 50
	}

	key := params.cacheKey()
	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var apps []models.AppSummary
		if err := json.Unmarshal(data, &apps); err == nil {
			return SearchResult{Apps: apps, CacheHit: true}, nil
		}
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Search cache read failed")
	}

	// Coalesce concurrent identical searches into one upstream call.
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.searchUpstream(ctx, params)
	})
	if err != nil {
		return SearchResult{}, err
	}
	apps := v.([]models.AppSummary)

	if data, err := json.Marshal(apps); err == nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Search cache write failed")
		}
	}

	return SearchResult{Apps: apps, CacheHit: false}, nil
}

// SearchLocale is Search with the country/language derived from a
// locale code. Unknown locales fail rather than defaulting.
func (c *Client) SearchLocale(ctx context.Context, localeCode, term string, num int) (SearchResult, error) {
	info, err := locale.Lookup(localeCode)
	if err != nil {
		return SearchResult{}, err
	}
	return c.Search(ctx, SearchParams{
		Country:  info.Country,
		Language: info.Language,
		Term:     term,
		Num:      num,
	})
}

// searchUpstream performs the HTTP search with retry on transient
// connection errors.
func (c *Client) searchUpstream(ctx context.Context, params SearchParams) ([]models.AppSummary, error) {
	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, url.Values{
		"term":    {params.Term},
		"country": {params.Country},
		"lang":    {params.Language},
		"media":   {"software"},
		"entity":  {"software"},
		"limit":   {strconv.Itoa(params.Num)},
	}.Encode())

	var lastErr error
	for attempt := 0; attempt <= MaxSearchRetries; attempt++ {
		resp, err := c.fetch(ctx, endpoint)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == MaxSearchRetries {
			break
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("term", params.Term).
			Msg("Transient search failure, retrying")
		c.sleep(RetryDelay)
	}

	return nil, fmt.Errorf("%w: search %q: %v", models.ErrUpstream, params.Term, lastErr)
}

// GetSimilarApps returns the store's "customers also bought" relation
// for an app. Fails for apps with no public listing; callers treat that
// as an expected, recoverable condition.
func (c *Client) GetSimilarApps(ctx context.Context, appID, localeCode string) ([]models.AppSummary, error) {
	info, err := locale.Lookup(localeCode)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/app/id%s/similar?%s", c.baseURL, info.Country, appID, url.Values{
		"lang": {info.Language},
	}.Encode())

	apps, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("similar apps for %s: %w", appID, err)
	}
	return apps, nil
}

// GetApp looks up a single app record. Fails with ErrNotFound for apps
// with no public listing in the locale's storefront.
func (c *Client) GetApp(ctx context.Context, appID, localeCode string) (models.AppSummary, error) {
	info, err := locale.Lookup(localeCode)
	if err != nil {
		return models.AppSummary{}, err
	}

	endpoint := fmt.Sprintf("%s/lookup?%s", c.baseURL, url.Values{
		"id":      {appID},
		"country": {info.Country},
		"lang":    {info.Language},
	}.Encode())

	apps, err := c.fetch(ctx, endpoint)
	if err != nil {
		return models.AppSummary{}, err
	}
	if len(apps) == 0 {
		return models.AppSummary{}, fmt.Errorf("%w: app %s in %s", models.ErrNotFound, appID, localeCode)
	}
	return apps[0], nil
}

// fetch runs one GET against the store API and decodes the result list.
func (c *Client) fetch(ctx context.Context, endpoint string) ([]models.AppSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store API status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode store response: %w", err)
	}

	apps := make([]models.AppSummary, 0, len(payload.Results))
	for _, r := range payload.Results {
		apps = append(apps, r.toSummary())
	}
	return apps, nil
}

// isTransient reports whether an error looks like a recoverable network
// failure (connection reset, timeout) worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}
