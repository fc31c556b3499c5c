// Package geocode resolves free-text place names to coordinates with the Kakao local API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	apperrors "outing-workers/internal/common/errors"
	httpclient "outing-workers/internal/common/http"
	"outing-workers/internal/common/metrics"
)

const (
	DefaultBaseURL     = "https://dapi.kakao.com"
	DefaultMaxAttempts = 3
	DefaultCachePrefix = "outing:geo:"

	keywordPath = "/v2/local/search/keyword.json"
)

var ErrMissingAPIKey = errors.New("kakao api key is not configured")

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	CacheTTL    time.Duration
	RateLimit   float64
}

// PlaceResult is the outcome of resolving one place text.
type PlaceResult struct {
	Success  bool    `json:"success"`
	Name     string  `json:"name,omitempty"`
	Address  string  `json:"address,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	MapLink  string  `json:"mapLink"`
	PlaceURL string  `json:"placeUrl,omitempty"`
	Attempts int     `json:"attempts"`
	Matched  string  `json:"matchedQuery,omitempty"`
	Message  string  `json:"message,omitempty"`
}

type Geocoder struct {
	cfg     Config
	http    *httpclient.Client
	cache   *redis.Client
	limiter *rate.Limiter
	logger  Logger
}

// NewGeocoder builds a geocoder. cache may be nil.
func NewGeocoder(cfg Config, cache *redis.Client, log Logger) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > DefaultMaxAttempts {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Geocoder{
		cfg:     cfg,
		http:    httpclient.NewClient(cfg.Timeout),
		cache:   cache,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log,
	}
}

// Candidates lists the queries tried for text: the text itself, then the text with
// trailing words dropped one at a time, at most maxAttempts entries.
func Candidates(text string, maxAttempts int) []string {
	words := strings.Fields(text)
	out := make([]string, 0, maxAttempts)
	for n := len(words); n > 0 && len(out) < maxAttempts; n-- {
		out = append(out, strings.Join(words[:n], " "))
	}
	return out
}

// Resolve geocodes text, dropping trailing words until a match is found or the
// attempt budget is spent. A miss yields a Kakao Map search link instead of a pin.
func (g *Geocoder) Resolve(ctx context.Context, text string) PlaceResult {
	text = strings.TrimSpace(text)
	miss := PlaceResult{Success: false, MapLink: SearchLink(text)}

	if g.cfg.APIKey == "" {
		g.logger.Warn("geocoding skipped", map[string]interface{}{"error": ErrMissingAPIKey.Error()})
		miss.Message = "위치 정보를 찾을 수 없습니다."
		return miss
	}

	attempts := 0
	for _, q := range Candidates(text, g.cfg.MaxAttempts) {
		attempts++
		place, err := g.lookup(ctx, q)
		if err == nil {
			metrics.GeocodeAttempts.Observe(float64(attempts))
			place.Attempts = attempts
			place.Matched = q
			return *place
		}

		fields := map[string]interface{}{"query": q, "attempt": attempts, "error": err.Error()}
		if apperrors.CodeOf(err) == apperrors.ErrCodeGeocodeNotFound {
			g.logger.Debug("no geocoding match, truncating", fields)
		} else {
			g.logger.Warn("geocoding call failed", fields)
		}
		if ctx.Err() != nil {
			break
		}
	}

	metrics.GeocodeAttempts.Observe(float64(attempts))
	miss.Attempts = attempts
	miss.Message = "'" + text + "'에 대한 위치 정보를 찾을 수 없습니다."
	return miss
}

type keywordResponse struct {
	Documents []struct {
		PlaceName       string `json:"place_name"`
		AddressName     string `json:"address_name"`
		RoadAddressName string `json:"road_address_name"`
		X               string `json:"x"`
		Y               string `json:"y"`
		PlaceURL        string `json:"place_url"`
	} `json:"documents"`
}

func (g *Geocoder) lookup(ctx context.Context, q string) (*PlaceResult, error) {
	if cached, ok := g.fromCache(ctx, q); ok {
		return cached, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewGeocodeFailedError(err)
	}

	params := url.Values{}
	params.Set("query", q)
	params.Set("size", "1")
	headers := map[string]string{"Authorization": "KakaoAK " + g.cfg.APIKey}

	var resp keywordResponse
	if err := g.http.DoJSON(ctx, http.MethodGet, g.cfg.BaseURL+keywordPath+"?"+params.Encode(), headers, nil, &resp); err != nil {
		return nil, apperrors.NewGeocodeFailedError(err)
	}
	if len(resp.Documents) == 0 {
		return nil, apperrors.NewGeocodeNotFoundError(q)
	}

	doc := resp.Documents[0]
	lat, errLat := strconv.ParseFloat(doc.Y, 64)
	lng, errLng := strconv.ParseFloat(doc.X, 64)
	if errLat != nil || errLng != nil {
		return nil, apperrors.NewGeocodeNotFoundError(q).WithMetadata("reason", "unparsable coordinates")
	}

	address := doc.RoadAddressName
	if address == "" {
		address = doc.AddressName
	}

	place := &PlaceResult{
		Success:  true,
		Name:     doc.PlaceName,
		Address:  address,
		Lat:      lat,
		Lng:      lng,
		MapLink:  MapLink(doc.PlaceName, lat, lng),
		PlaceURL: doc.PlaceURL,
	}
	g.toCache(ctx, q, place)
	return place, nil
}

func (g *Geocoder) cacheKey(q string) string {
	return DefaultCachePrefix + q
}

func (g *Geocoder) fromCache(ctx context.Context, q string) (*PlaceResult, bool) {
	if g.cache == nil {
		return nil, false
	}
	raw, err := g.cache.Get(ctx, g.cacheKey(q)).Bytes()
	if err != nil {
		if err != redis.Nil {
			g.logger.Warn("geocode cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}

	var place PlaceResult
	if json.Unmarshal(raw, &place) != nil || !place.Success {
		return nil, false
	}
	return &place, true
}

func (g *Geocoder) toCache(ctx context.Context, q string, place *PlaceResult) {
	if g.cache == nil || g.cfg.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(place)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, g.cacheKey(q), data, g.cfg.CacheTTL).Err(); err != nil {
		g.logger.Warn("geocode cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
