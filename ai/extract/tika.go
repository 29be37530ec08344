// Package extract turns referenced files (CVs, competence files, documents)
// into plain text for indexing.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/internal/profile"
)

// DefaultTikaURL is the address of a locally running Tika server.
const DefaultTikaURL = "http://localhost:9998"

// maxFileSize bounds how much of a referenced file is forwarded to Tika.
const maxFileSize = 32 << 20

// maxTextSize bounds how much extracted text is read back from Tika. Longer
// text is cut at a rune boundary.
const maxTextSize = 4 << 20

// Extractor extracts plain text from the file at url.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// TikaExtractor fetches a file and converts it with an Apache Tika server.
type TikaExtractor struct {
	client  *http.Client
	baseURL string
}

// NewTikaExtractor creates a TikaExtractor for the server at baseURL.
func NewTikaExtractor(baseURL string, timeout time.Duration) *TikaExtractor {
	if baseURL == "" {
		baseURL = DefaultTikaURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TikaExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewFromProfile returns the configured extractor, or nil when text
// extraction is disabled.
func NewFromProfile(p *profile.Profile) Extractor {
	if !p.TextExtractEnabled {
		return nil
	}
	return NewTikaExtractor(p.TikaServerURL, 0)
}

// Extract downloads url and returns the text Tika extracted from it.
// Any failure, including an empty extraction, is ErrEnrichmentUnavailable.
func (t *TikaExtractor) Extract(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errs.EnrichmentUnavailable(nil, "no file url")
	}

	body, contentType, err := t.fetch(ctx, url)
	if err != nil {
		return "", errs.EnrichmentUnavailable(err, "fetch "+url)
	}

	text, err := t.convert(ctx, body, contentType)
	if err != nil {
		return "", errs.EnrichmentUnavailable(err, "extract "+url)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.EnrichmentUnavailable(nil, "empty extraction for "+url)
	}
	return text, nil
}

func (t *TikaExtractor) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("file download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (t *TikaExtractor) convert(ctx context.Context, file []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(file))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // cleanup

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tika: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	text, err := io.ReadAll(io.LimitReader(resp.Body, maxTextSize))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(text), ""), nil
}
