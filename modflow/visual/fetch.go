package visual

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/groupmod/modbot/util"

	"github.com/carlmjohnson/versioninfo"
)

// Fetches attachment bytes by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Attachments larger than this are not classified.
const DefaultMaxAttachmentBytes = 25 * 1024 * 1024

type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// Attachment fetcher which only connects to public addresses.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:   util.PublicOnlyHTTPClient(),
		MaxBytes: DefaultMaxAttachmentBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "modbot/"+versioninfo.Short())

	start := time.Now()
	defer func() {
		attachmentDownloadDuration.Observe(time.Since(start).Seconds())
	}()

	resp, err := f.Client.Do(req)
	if err != nil {
		attachmentDownloadCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("attachment download failed: %w", err)
	}
	defer resp.Body.Close()

	attachmentDownloadCount.WithLabelValues(fmt.Sprint(resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download failed statusCode=%d", resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxAttachmentBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("attachment exceeds %d bytes", limit)
	}
	return body, nil
}
