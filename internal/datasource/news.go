package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/medicech/tesouro-quant/internal/infra"
	"github.com/medicech/tesouro-quant/pkg/models"
)

// News reads headlines from RSS/Atom feeds, by default the Banco Central
// press releases that move the Selic and IPCA curves.
type News struct {
	client *Client
	feeds  []string
	parser *gofeed.Parser
}

// NewNews creates a news source over the given feed URLs.
func NewNews(client *Client, feeds []string) *News {
	return &News{client: client, feeds: feeds, parser: gofeed.NewParser()}
}

// Name returns the data source name.
func (n *News) Name() string { return "BCB News" }

// Latest returns up to limit articles from all feeds, newest first and
// deduplicated by link. Feeds that fail are skipped; limit <= 0 means all.
func (n *News) Latest(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	all, err := infra.Fetch(n.client.Cache, "news:all", func() ([]models.NewsArticle, error) {
		var articles []models.NewsArticle
		var lastErr error
		for _, feedURL := range n.feeds {
			items, err := n.fetchFeed(ctx, feedURL)
			if err != nil {
				// Non-critical: skip failed feeds.
				n.client.logger().WithError(err).WithField("feed", feedURL).Warn("news feed skipped")
				lastErr = err
				continue
			}
			articles = append(articles, items...)
		}
		if len(articles) == 0 && lastErr != nil {
			return nil, lastErr
		}
		articles = dedupeArticles(articles)
		sortArticlesByDate(articles)
		return articles, nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// fetchFeed downloads and parses one feed.
func (n *News) fetchFeed(ctx context.Context, feedURL string) ([]models.NewsArticle, error) {
	body, err := n.client.get(ctx, feedURL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml",
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := n.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = feedURL
	}
	articles := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		a := models.NewsArticle{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Source:  source,
			Summary: cleanHTML(item.Description),
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.PublishedAt = *item.UpdatedParsed
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// dedupeArticles keeps the first article per link (or title when the link is empty).
func dedupeArticles(articles []models.NewsArticle) []models.NewsArticle {
	seen := make(map[string]bool, len(articles))
	out := articles[:0]
	for _, a := range articles {
		key := a.URL
		if key == "" {
			key = a.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// sortArticlesByDate sorts articles by published date (newest first).
func sortArticlesByDate(articles []models.NewsArticle) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}
