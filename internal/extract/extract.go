// Package extract fetches the full text behind an item's URL.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const userAgent = "digest/1.0 (news aggregator)"

// Extractor returns the cleaned text of the page at a URL.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// New returns the extractor for mode: "readability" fetches the page
// directly, anything else goes through the Jina reader.
func New(mode string, timeout time.Duration) Extractor {
	if strings.EqualFold(mode, "readability") {
		return NewReadability(timeout)
	}
	return NewJina(timeout)
}

// Readability fetches pages over HTTP and extracts the article body.
type Readability struct {
	client *http.Client
}

// NewReadability creates a readability extractor.
func NewReadability(timeout time.Duration) *Readability {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Readability{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Extract implements Extractor.
func (r *Readability) Extract(ctx context.Context, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}

// DefaultJinaURL is the public Jina reader endpoint.
const DefaultJinaURL = "https://r.jina.ai/"

// Jina asks the Jina reader service for a markdown rendition of a page.
type Jina struct {
	BaseURL string
	client  *http.Client
}

// NewJina creates a Jina reader extractor.
func NewJina(timeout time.Duration) *Jina {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Jina{BaseURL: DefaultJinaURL, client: &http.Client{Timeout: timeout}}
}

var jinaHeader = regexp.MustCompile(`(?i)\A(?:(?:Title|URL Source|Published Time):.*\n|[ \t]*\n)*(?:Markdown Content:\n)?`)

// Extract implements Extractor.
func (j *Jina) Extract(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.BaseURL+pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/markdown")
	req.Header.Set("User-Agent", userAgent)

	resp, err := j.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(jinaHeader.ReplaceAllString(string(body), "")), nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
