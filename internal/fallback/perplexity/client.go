// Package perplexity searches the web for family events through the Perplexity chat API.
package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	apperrors "outing-workers/internal/common/errors"
	httpclient "outing-workers/internal/common/http"
	"outing-workers/internal/models"
)

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	DefaultModel   = "sonar-pro"

	untitled        = "제목 미상"
	webCategory     = "행사"
	maxDescRunes    = 100
	completionsPath = "/chat/completions"
)

var (
	ErrMissingAPIKey = errors.New("perplexity api key is not configured")
	ErrEmptyQuery    = errors.New("perplexity query is empty")
	ErrNoJSONArray   = errors.New("perplexity response has no JSON array")
)

const systemPrompt = `응답 전체를 JSON 배열 하나로만 반환하라. 마크다운, 코드펜스, 설명 문장은 쓰지 않는다.
각 요소는 {"name": "...", "link": "https://...", "description": "...", "location": "..."} 형식이며 모든 필드는 비어 있지 않은 문자열이다.
link는 행사 단일 상세 페이지의 https URL이어야 한다.
location에는 지도 검색으로 바로 찾을 수 있는 건물, 랜드마크, 전시장 이름만 넣고 층이나 호수는 제외한다.
요청에 지역이 있으면 그 지역에서 열리는 행사만 포함한다. 오늘 이후 일정만 포함한다.`

const userPromptTemplate = `오늘 날짜: %s
사용자 요청: %s

요청에 기간이 없으면 오늘부터 7일 이내 일정과 겹치는 행사를 찾고, 없으면 최대 1개월 뒤까지 범위를 넓혀라.
description은 "기간 해석: YYYY-MM-DD ~ YYYY-MM-DD | " 로 시작하고 날짜와 장소를 한 문장으로 요약한다.`

var weekdays = []string{"일", "월", "화", "수", "목", "금", "토"}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *httpclient.Client
	now  func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpclient.NewClient(cfg.Timeout), now: time.Now}
}

func (c *Client) Source() models.Source {
	return models.SourceWeb
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Item is one event as returned by the model.
type Item struct {
	Name        string `json:"name"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// Search asks the model for events matching query and normalizes them into facilities
// without coordinates.
func (c *Client) Search(ctx context.Context, query string) ([]models.Facility, error) {
	if c.cfg.APIKey == "" {
		return nil, apperrors.NewWebSearchFailedError(ErrMissingAPIKey)
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewWebSearchFailedError(ErrEmptyQuery)
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, c.today(), query)},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var resp chatResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, headers, req, &resp); err != nil {
		if apperrors.IsTimeout(err) || ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewWebSearchTimeoutError(err)
		}
		return nil, apperrors.NewWebSearchFailedError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, apperrors.NewWebSearchFailedError(errors.New("empty completion"))
	}

	items, err := ParseItems(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, apperrors.NewWebSearchFailedError(err)
	}
	return toFacilities(items), nil
}

func (c *Client) today() string {
	now := c.now()
	return fmt.Sprintf("%s (%s)", now.Format("2006-01-02"), weekdays[now.Weekday()])
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?")
	fenceClose = regexp.MustCompile("(?m)```$")
	arrayRe    = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExtractJSONArray strips code fences and returns the JSON array embedded in text.
func ExtractJSONArray(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimSpace(fenceOpen.ReplaceAllString(cleaned, ""))
	cleaned = strings.TrimSpace(fenceClose.ReplaceAllString(cleaned, ""))

	if strings.HasPrefix(cleaned, "[") {
		return cleaned
	}
	return strings.TrimSpace(arrayRe.FindString(cleaned))
}

// ParseItems extracts and normalizes the items of a completion. Items without a link
// are dropped.
func ParseItems(content string) ([]Item, error) {
	raw := ExtractJSONArray(content)
	if raw == "" {
		return nil, ErrNoJSONArray
	}

	var parsed []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse perplexity array: %w", err)
	}

	items := make([]Item, 0, len(parsed))
	for _, msg := range parsed {
		var it Item
		if json.Unmarshal(msg, &it) != nil {
			continue
		}
		it.Link = strings.TrimSpace(it.Link)
		if it.Link == "" {
			continue
		}
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			// names key the shown set, so untitled items stay distinct by link
			it.Name = untitled + " (" + it.Link + ")"
		}
		it.Description = strings.TrimSpace(it.Description)
		it.Location = strings.TrimSpace(it.Location)
		items = append(items, it)
	}
	return items, nil
}

func toFacilities(items []Item) []models.Facility {
	out := make([]models.Facility, 0, len(items))
	for _, it := range items {
		out = append(out, models.Facility{
			Name:          it.Name,
			Category:      webCategory,
			Description:   truncate(it.Description, maxDescRunes),
			Address:       it.Location,
			IndoorOutdoor: models.IndoorOutdoorUnset,
			Link:          it.Link,
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
