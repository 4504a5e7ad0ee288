package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher downloads remote audio references over HTTP.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher builds an audio fetcher with a bounded timeout and payload cap.
func NewFetcher(timeout time.Duration, maxSize int64) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if maxSize == 0 {
		maxSize = 25 << 20 // Whisper upload limit
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// Fetch retrieves the resource and reports its media type, sniffing the
// payload when the server does not declare one.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch audio: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch audio: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("fetch audio: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", fmt.Errorf("fetch audio: payload exceeds %d bytes", f.maxSize)
	}

	mediaType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	return data, mediaType, nil
}
