package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/types"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Scraper collects headlines for a symbol from the configured sources.
type Scraper struct {
	sources []Source
	timeout time.Duration
	http    *http.Client
}

// Source describes one news site's listing page.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // contains {symbol}
	Selectors  Selectors
	RateLimit  time.Duration
}

// Selectors are the CSS hooks used to pull articles off a listing page.
type Selectors struct {
	ArticleContainer string
	Title            string
	URL              string
	Content          string
	PublishedAt      string
}

func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{
		sources: defaultSources(),
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

func defaultSources() []Source {
	return []Source{
		{
			Name:       "MoneyControl",
			BaseURL:    "https://www.moneycontrol.com",
			SearchPath: "/news/tags/{symbol}.html",
			Selectors: Selectors{
				ArticleContainer: "li.clearfix",
				Title:            "h2 a, h3 a",
				URL:              "h2 a, h3 a",
				Content:          "p",
				PublishedAt:      "span.ago",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "EconomicTimes",
			BaseURL:    "https://economictimes.indiatimes.com",
			SearchPath: "/topic/{symbol}",
			Selectors: Selectors{
				ArticleContainer: "div.story-box",
				Title:            "a",
				URL:              "a",
				Content:          "p",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "BusinessStandard",
			BaseURL:    "https://www.business-standard.com",
			SearchPath: "/search?q={symbol}",
			Selectors: Selectors{
				ArticleContainer: "div.listing-txt",
				Title:            "a.Hdng",
				URL:              "a.Hdng",
				Content:          "p",
				PublishedAt:      "span.listing-date",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Scrape fetches up to maxArticles headlines for symbol across all sources.
// Source failures are logged and skipped so one dead site never empties the
// digest.
func (s *Scraper) Scrape(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	logger.Info(ctx, "Starting news scraping", "symbol", symbol, "sources", len(s.sources))

	perSource := maxArticles / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	var all []types.NewsArticle
	for _, source := range s.sources {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		articles, err := s.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			continue
		}
		all = append(all, articles...)
		time.Sleep(source.RateLimit)
	}

	logger.Info(ctx, "News scraping completed", "symbol", symbol, "articles", len(all))
	return all, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, source Source, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	var articles []types.NewsArticle

	c := colly.NewCollector(
		colly.AllowedDomains(hostname(source.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
	})

	c.OnHTML(source.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}

		title := strings.TrimSpace(e.ChildText(source.Selectors.Title))
		if title == "" {
			return
		}
		articleURL := e.ChildAttr(source.Selectors.URL, "href")
		if articleURL == "" {
			return
		}
		if !strings.HasPrefix(articleURL, "http") {
			articleURL = source.BaseURL + articleURL
		}

		articles = append(articles, types.NewsArticle{
			Title:       title,
			URL:         articleURL,
			Content:     strings.TrimSpace(e.ChildText(source.Selectors.Content)),
			Source:      source.Name,
			PublishedAt: strings.TrimSpace(e.ChildText(source.Selectors.PublishedAt)),
			Symbol:      symbol,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Scraping error", err, "source", source.Name, "url", r.Request.URL.String())
	})

	searchURL := source.BaseURL + strings.ReplaceAll(source.SearchPath, "{symbol}", strings.ToLower(symbol))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", searchURL, err)
	}
	c.Wait()

	return s.enrich(ctx, articles), nil
}

// enrich fills in article bodies when the listing page only carried a blurb.
func (s *Scraper) enrich(ctx context.Context, articles []types.NewsArticle) []types.NewsArticle {
	out := make([]types.NewsArticle, len(articles))
	copy(out, articles)

	for i := range out {
		if len(out[i].Content) >= 100 {
			continue
		}
		if body := s.fetchBody(ctx, out[i].URL); body != "" {
			out[i].Content = body
		}
		time.Sleep(500 * time.Millisecond)
	}
	return out
}

// fetchBody pulls the article page and extracts paragraph text from the usual
// body containers.
func (s *Scraper) fetchBody(ctx context.Context, articleURL string) string {
	req, err := http.NewRequestWithContext(ctx, "GET", articleURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		logger.Debug(ctx, "Article fetch failed", "url", articleURL, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	var paragraphs []string
	doc.Find("article p, div.article-body p, div.content-body p, div.story-content p").
		Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
	return strings.Join(paragraphs, "\n\n")
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ScrapeGoogleNews is the fallback when every primary source returns nothing.
func (s *Scraper) ScrapeGoogleNews(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	var articles []types.NewsArticle

	c := colly.NewCollector(
		colly.AllowedDomains("news.google.com", "www.google.com"),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
	})

	c.OnHTML("article", func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}
		title := e.ChildText("h3, h4")
		link := e.ChildAttr("a", "href")
		if title == "" || link == "" {
			return
		}
		if strings.HasPrefix(link, "./articles/") {
			link = "https://news.google.com" + link[1:]
		}
		articles = append(articles, types.NewsArticle{
			Title:  title,
			URL:    link,
			Source: "GoogleNews",
			Symbol: symbol,
		})
	})

	query := url.QueryEscape(symbol + " stock news India")
	searchURL := fmt.Sprintf("https://news.google.com/search?q=%s&hl=en-IN&gl=IN&ceid=IN:en", query)
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to scrape Google News: %w", err)
	}
	c.Wait()

	logger.Info(ctx, "Google News scraping completed", "symbol", symbol, "articles", len(articles))
	return articles, nil
}
