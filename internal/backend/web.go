package backend

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"unisearch/internal/model"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// WebBackend is the direct "open web" source: it issues a GET against a
// configured HTML search endpoint and extracts result titles and snippets
// from the returned markup with goquery.
type WebBackend struct {
	searchURLTemplate string // e.g. "https://html.duckduckgo.com/html/?q=%s"
	resultSelector    string // CSS selector for one result container
	titleSelector     string
	snippetSelector   string
	linkSelector      string
	httpClient        *http.Client
	logger            *zap.Logger
}

// WebBackendConfig configures a WebBackend against one HTML search provider.
type WebBackendConfig struct {
	SearchURLTemplate string
	ResultSelector    string
	TitleSelector     string
	SnippetSelector   string
	LinkSelector      string
}

// NewWebBackend builds a WebBackend. A zero-value config falls back to a
// generic DuckDuckGo HTML result layout.
func NewWebBackend(cfg WebBackendConfig, logger *zap.Logger) *WebBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SearchURLTemplate == "" {
		cfg.SearchURLTemplate = "https://html.duckduckgo.com/html/?q=%s"
		cfg.ResultSelector = ".result"
		cfg.TitleSelector = ".result__title"
		cfg.SnippetSelector = ".result__snippet"
		cfg.LinkSelector = ".result__url"
	}
	return &WebBackend{
		searchURLTemplate: cfg.SearchURLTemplate,
		resultSelector:    cfg.ResultSelector,
		titleSelector:     cfg.TitleSelector,
		snippetSelector:   cfg.SnippetSelector,
		linkSelector:      cfg.LinkSelector,
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		logger:            logger,
	}
}

func (w *WebBackend) SourceName() string               { return "web_search" }
func (w *WebBackend) SourceClass() model.SourceClass   { return model.SourceClassWeb }
func (w *WebBackend) SupportedMethods() []model.Method { return []model.Method{model.MethodFulltext} }
func (w *WebBackend) SupportedFilters() []model.FilterSpec {
	return nil
}

// Search fetches the configured HTML search endpoint and parses result
// cards into SearchResults, bounded by topK.
func (w *WebBackend) Search(ctx context.Context, query string, methods []model.Method, filters []model.FilterClause, topK int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	target := fmt.Sprintf(w.searchURLTemplate, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("web_search: building request: %w", err)
	}
	req.Header.Set("User-Agent", "unisearch/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_search: fetching %q: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("web_search: search endpoint returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("web_search: parsing HTML: %w", err)
	}

	if topK <= 0 {
		topK = 10
	}

	var results []model.SearchResult
	doc.Find(w.resultSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find(w.titleSelector).First().Text())
		snippet := strings.TrimSpace(s.Find(w.snippetSelector).First().Text())
		link, _ := s.Find(w.linkSelector).First().Attr("href")
		if title == "" && snippet == "" {
			return true
		}

		results = append(results, model.SearchResult{
			ID:          resultID(link, title, i),
			Source:      w.SourceName(),
			SourceClass: model.SourceClassWeb,
			Title:       title,
			Snippet:     snippet,
			Scores:      map[string]float64{string(model.MethodFulltext): 1.0 - float64(i)*0.05},
			MethodsUsed: []model.Method{model.MethodFulltext},
			Provenance:  link,
		})
		return len(results) < topK
	})

	return results, nil
}

func resultID(link, title string, position int) string {
	seed := link
	if seed == "" {
		seed = fmt.Sprintf("%s#%d", title, position)
	}
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:8])
}
