package navercafe

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"outing-workers/internal/models"
)

// Enrich replaces the snippets of facilities with article bodies when enrichment
// is configured. Callers pass the records that will actually be shown.
func (c *Client) Enrich(ctx context.Context, facilities []models.Facility) {
	if c.cfg.EnrichArticles {
		c.enrich(ctx, facilities)
	}
}

// enrich replaces the search snippet of the top articles with the start of the
// article body. Failures keep the snippet.
func (c *Client) enrich(ctx context.Context, facilities []models.Facility) {
	n := len(facilities)
	if n > enrichTopN {
		n = enrichTopN
	}

	bodies := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			body, err := c.FetchArticleBody(gctx, facilities[i].Link)
			if err != nil {
				c.logger.Debug("cafe article enrichment failed", map[string]interface{}{
					"link":  facilities[i].Link,
					"error": err.Error(),
				})
				return nil
			}
			bodies[i] = body
			return nil
		})
	}
	_ = g.Wait()

	for i, body := range bodies {
		if body != "" {
			facilities[i].Description = truncate(body, maxDescRunes)
		}
	}
}

// MobileLink points a cafe article link at the mobile site, which serves the body without frames.
func MobileLink(link string) string {
	if strings.Contains(link, "://m.cafe.naver.com") {
		return link
	}
	return strings.Replace(link, "://cafe.naver.com", "://m.cafe.naver.com", 1)
}

// FetchArticleBody downloads an article page and returns up to 850 runes of its body text.
func (c *Client) FetchArticleBody(ctx context.Context, link string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EnrichTimeout)
	defer cancel()

	page, err := c.pages.GetBody(ctx, MobileLink(link), nil)
	if err != nil {
		return "", err
	}
	return ExtractBody(page)
}

// ExtractBody pulls the article text out of a cafe page (SmartEditor or legacy layout).
func ExtractBody(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	sel := doc.Find("div.se-main-container").First()
	if sel.Length() == 0 {
		sel = doc.Find("#postContent").First()
	}
	if sel.Length() == 0 {
		return "", nil
	}

	text := strings.Join(strings.Fields(sel.Text()), " ")
	return truncate(text, maxBodyRunes), nil
}
