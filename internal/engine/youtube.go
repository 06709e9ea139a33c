package engine

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/metrics"
)

// YouTubeFinder implements VideoFinder with the YouTube Data API v3 search
// endpoint. It looks for one short explainer video per lesson.
type YouTubeFinder struct {
	svc     *youtube.Service
	log     *logger.Logger
	timeout time.Duration
}

// NewYouTubeFinder creates a finder authenticated with an API key. Extra
// client options (endpoint, HTTP client) are passed through to the SDK.
func NewYouTubeFinder(ctx context.Context, apiKey string, log *logger.Logger, opts ...option.ClientOption) (*YouTubeFinder, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTubeFinder{svc: svc, log: log, timeout: 10 * time.Second}, nil
}

// FindVideo returns the id of the top short video for the lesson, or "" when
// nothing was found or the search failed.
func (f *YouTubeFinder) FindVideo(ctx context.Context, lessonTitle string) string {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.svc.Search.List([]string{"snippet"}).
		Q(lessonTitle + " tutorial explained simply").
		Type("video").
		VideoDuration("short").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("youtube", "error").Inc()
		f.log.Warn("youtube search failed, continuing without video", "lesson", lessonTitle, "error", err)
		return ""
	}
	metrics.ProviderCalls.WithLabelValues("youtube", "ok").Inc()

	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId
		}
	}
	return ""
}

// NoopFinder is used when no video provider is configured.
type NoopFinder struct{}

func (NoopFinder) FindVideo(context.Context, string) string { return "" }
