package handlers

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/models"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/ratelimit"
)

var youtubeWatch = regexp.MustCompile(`(?:youtube\.com/watch\?[^\s)\]]*v=|youtu\.be/)([A-Za-z0-9_-]{6,})`)

// TranscriptFetcher retrieves the transcript for a video. Implementations
// must mark non-retryable failures with ratelimit.Permanent.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// YouTube enriches captured video notes. The transcript is fetched through
// the retry limiter, then fed into enrichment alongside the note body so
// the quality score reflects the actual video content.
type YouTube struct {
	base
	fetcher TranscriptFetcher
}

// NewYouTube creates the YouTube capture handler.
func NewYouTube(svc *noteservice.Service, enricher Enricher, fetcher TranscriptFetcher, limiter *ratelimit.Limiter, coll *metrics.Collector, logger *slog.Logger) *YouTube {
	return &YouTube{
		base:    newBase("youtube", svc, enricher, limiter, coll, logger),
		fetcher: fetcher,
	}
}

// CanHandle implements watcher.Handler.
func (h *YouTube) CanHandle(path string, op fsnotify.Op) bool {
	return canHandlePath(path, op)
}

// Handle implements watcher.Handler.
func (h *YouTube) Handle(ctx context.Context, path string, _ fsnotify.Op) error {
	note, err := h.load(ctx, path)
	if err != nil || note == nil {
		return err
	}
	videoID := h.videoID(note)
	if videoID == "" {
		return nil
	}

	var transcript string
	err = h.limiter.Do(ctx, "youtube_transcript", func(ctx context.Context) error {
		t, err := h.fetcher.Fetch(ctx, videoID)
		if err != nil {
			return err
		}
		transcript = t
		return nil
	})
	if err != nil {
		return fmt.Errorf("youtube: transcript for %s: %w", videoID, err)
	}

	content := note.Body
	if transcript != "" {
		content += "\n\n## Transcript\n\n" + transcript
	}
	res, err := h.enrichContent(ctx, content)
	if err != nil {
		return err
	}
	return h.complete(ctx, note, res)
}

func (h *YouTube) videoID(note *models.Note) string {
	if id, _ := note.Frontmatter["video_id"].(string); id != "" {
		return id
	}
	if m := youtubeWatch.FindStringSubmatch(note.Body); m != nil {
		return m[1]
	}
	return ""
}

// TimedTextFetcher pulls captions from YouTube's timedtext endpoint.
type TimedTextFetcher struct {
	endpoint string
	http     *http.Client
}

// NewTimedTextFetcher creates the default transcript source.
func NewTimedTextFetcher() *TimedTextFetcher {
	return &TimedTextFetcher{
		endpoint: "https://video.google.com/timedtext",
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// Fetch implements TranscriptFetcher. A missing transcript is permanent;
// rate limiting and server errors are transient.
func (f *TimedTextFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	q := url.Values{"lang": {"en"}, "v": {videoID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", ratelimit.Permanent(err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ratelimit.Permanent(fmt.Errorf("no transcript for video %s", videoID))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("timedtext returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", ratelimit.Permanent(fmt.Errorf("timedtext returned %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", ratelimit.Permanent(fmt.Errorf("empty transcript for video %s", videoID))
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", ratelimit.Permanent(fmt.Errorf("parse transcript: %w", err))
	}
	parts := make([]string, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		if s := strings.TrimSpace(html.UnescapeString(t.Value)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
