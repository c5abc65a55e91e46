package handlers

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/models"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/ratelimit"
)

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s)\]]+`)
	titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// TitleFetcher retrieves the page title for a captured link. Implementations
// must mark non-retryable failures with ratelimit.Permanent.
type TitleFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// SmartLink enriches captured web-link notes: inbox notes that declare a
// web source or whose body contains a URL. The page title is fetched through
// the retry limiter and fed into enrichment alongside the note body. YouTube
// links are left for the dedicated handler.
type SmartLink struct {
	base
	fetcher TitleFetcher
}

// NewSmartLink creates the smart-link capture handler.
func NewSmartLink(svc *noteservice.Service, enricher Enricher, fetcher TitleFetcher, limiter *ratelimit.Limiter, coll *metrics.Collector, logger *slog.Logger) *SmartLink {
	return &SmartLink{
		base:    newBase("smart_link", svc, enricher, limiter, coll, logger),
		fetcher: fetcher,
	}
}

// CanHandle implements watcher.Handler.
func (h *SmartLink) CanHandle(path string, op fsnotify.Op) bool {
	return canHandlePath(path, op)
}

// Handle implements watcher.Handler.
func (h *SmartLink) Handle(ctx context.Context, path string, _ fsnotify.Op) error {
	note, err := h.load(ctx, path)
	if err != nil || note == nil {
		return err
	}
	link := h.claims(note)
	if link == "" {
		return nil
	}

	content := note.Body
	var title string
	err = h.limiter.Do(ctx, "smart_link_title", func(ctx context.Context) error {
		t, err := h.fetcher.Fetch(ctx, link)
		if err != nil {
			return err
		}
		title = t
		return nil
	})
	if err != nil {
		// A dead or title-less page still gets enriched from the capture
		// text itself.
		h.logger.Warn("page title fetch failed",
			slog.String("url", link), slog.String("error", err.Error()))
	} else if title != "" {
		content += "\n\n## Link\n\n" + title + "\n" + link
	}

	res, err := h.enrichContent(ctx, content)
	if err != nil {
		return err
	}
	return h.complete(ctx, note, res)
}

// claims returns the first non-YouTube URL the note captures, or "" when
// this handler should not touch the note.
func (h *SmartLink) claims(note *models.Note) string {
	urls := urlPattern.FindAllString(note.Body, -1)
	var first string
	for _, u := range urls {
		if isYouTubeURL(u) {
			continue
		}
		first = u
		break
	}
	if src, _ := note.Frontmatter["source"].(string); src == "web" || src == "smart-link" {
		if first == "" {
			if u, _ := note.Frontmatter["url"].(string); u != "" {
				first = u
			}
		}
		return first
	}
	return first
}

func isYouTubeURL(u string) bool {
	return strings.Contains(u, "youtube.com/watch") || strings.Contains(u, "youtu.be/")
}

// HTMLTitleFetcher resolves page titles with a plain GET.
type HTMLTitleFetcher struct {
	http *http.Client
}

// NewHTMLTitleFetcher creates the default page title source.
func NewHTMLTitleFetcher() *HTMLTitleFetcher {
	return &HTMLTitleFetcher{
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// maxTitleScan bounds how much of a page is read looking for <title>.
const maxTitleScan = 256 << 10

// Fetch implements TitleFetcher. Client errors and unparseable pages are
// permanent; rate limiting and server errors are transient.
func (f *HTMLTitleFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", ratelimit.Permanent(err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("page returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", ratelimit.Permanent(fmt.Errorf("page returned %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTitleScan))
	if err != nil {
		return "", err
	}
	m := titlePattern.FindSubmatch(body)
	if m == nil {
		return "", ratelimit.Permanent(fmt.Errorf("no title in %s", pageURL))
	}
	title := strings.Join(strings.Fields(html.UnescapeString(string(m[1]))), " ")
	if title == "" {
		return "", ratelimit.Permanent(fmt.Errorf("empty title in %s", pageURL))
	}
	return title, nil
}
