package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// HTTPOpener opens sessions that fetch pages with plain HTTP GET requests.
// It suits profile pages whose timestamps are present in the server-rendered HTML.
type HTTPOpener struct {
	opts   *Options
	client *http.Client
}

// NewHTTPOpener creates an HTTPOpener. A nil client gets a default one.
// Requests are bounded by the navigation timeout whatever the client.
func NewHTTPOpener(opts *Options, client *http.Client) *HTTPOpener {
	opts = normalize(opts)
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPOpener{opts: opts, client: client}
}

// Open returns a session sharing the opener's HTTP client.
func (o *HTTPOpener) Open(_ context.Context) (Session, error) {
	return &httpSession{opts: o.opts, client: o.client}, nil
}

type httpSession struct {
	opts   *Options
	client *http.Client
}

// Fetch retrieves the page and returns its visible body text.
func (s *httpSession) Fetch(ctx context.Context, id string) (string, error) {
	pageURL := ProfileURL(s.opts.URLTemplate, id)
	s.opts.Logger.Debug("Visiting profile", zap.String("url", pageURL))

	ctx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{ID: id, URL: pageURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "failed to read response body", Cause: err}
	}

	text, err := ExtractText(string(body))
	if err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "failed to parse page", Cause: err}
	}
	return text, nil
}

// Close is a no-op; the HTTP client is owned by the opener.
func (s *httpSession) Close() error {
	return nil
}

// ExtractText parses HTML and returns the text of its body with scripts,
// styles and other non-visible elements removed.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, template, head").Remove()

	// Block elements would otherwise run together once flattened to text.
	doc.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return cleanWhitespace(doc.Find("body").Text()), nil
}
