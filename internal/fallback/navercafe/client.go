// Package navercafe searches Naver cafe articles for first-hand parent reviews.
package navercafe

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "outing-workers/internal/common/errors"
	httpclient "outing-workers/internal/common/http"
	"outing-workers/internal/models"
)

const (
	DefaultBaseURL = "https://openapi.naver.com"
	DefaultDisplay = 10

	searchPath    = "/v1/search/cafearticle.json"
	cafeCategory  = "맘카페 후기"
	maxDescRunes  = 100
	enrichTopN    = 3
	maxBodyRunes  = 850
	mobileUA      = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1"
	defaultEnrich = 3 * time.Second
)

var ErrMissingCredentials = errors.New("naver client id/secret are not configured")

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	Display        int
	Timeout        time.Duration
	EnrichArticles bool
	EnrichTimeout  time.Duration
}

type Client struct {
	cfg    Config
	http   *httpclient.Client
	pages  *httpclient.Client
	logger Logger
}

func NewClient(cfg Config, log Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Display <= 0 {
		cfg.Display = DefaultDisplay
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = defaultEnrich
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		http:   httpclient.NewClient(cfg.Timeout),
		pages:  httpclient.NewClient(cfg.EnrichTimeout).WithUserAgent(mobileUA),
		logger: log,
	}
}

func (c *Client) Source() models.Source {
	return models.SourceCafe
}

// Article is one cafearticle search hit with highlight tags removed.
type Article struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	CafeName    string `json:"cafename"`
	CafeURL     string `json:"cafeurl"`
}

type searchResponse struct {
	Items []Article `json:"items"`
}

func (c *Client) Search(ctx context.Context, query string) ([]models.Facility, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, apperrors.NewCafeSearchFailedError(ErrMissingCredentials)
	}

	articles, err := c.searchArticles(ctx, query)
	if err != nil {
		return nil, apperrors.NewCafeSearchFailedError(err)
	}

	facilities := make([]models.Facility, 0, len(articles))
	for _, a := range articles {
		facilities = append(facilities, models.Facility{
			Name:          a.Title,
			Category:      cafeCategory,
			Description:   truncate(a.Description, maxDescRunes),
			IndoorOutdoor: models.IndoorOutdoorUnset,
			Note:          a.CafeName,
			Link:          a.Link,
		})
	}
	return facilities, nil
}

func (c *Client) searchArticles(ctx context.Context, query string) ([]Article, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(c.cfg.Display))
	params.Set("sort", "sim")

	headers := map[string]string{
		"X-Naver-Client-Id":     c.cfg.ClientID,
		"X-Naver-Client-Secret": c.cfg.ClientSecret,
	}

	var resp searchResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, c.cfg.BaseURL+searchPath+"?"+params.Encode(), headers, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Article, 0, len(resp.Items))
	for _, a := range resp.Items {
		a.Title = StripTags(a.Title)
		a.Description = StripTags(a.Description)
		if a.Title == "" || a.Link == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

var tagRe = regexp.MustCompile(`</?b>`)

// StripTags removes the <b> highlight tags Naver wraps around matched terms.
func StripTags(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
