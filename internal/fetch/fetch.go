// Package fetch retrieves the rendered text of profile pages.
//
// A fetch Session is opened once per run and shared by every identifier in
// that run. Two implementations exist: a headless Chrome session for pages
// that render client-side, and a plain HTTP session for static pages.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultProfileURLTemplate is the character page of the tracked community.
// {id} is replaced with the path-escaped identifier.
const DefaultProfileURLTemplate = "https://superiorservers.co/ssrp/cwrp/characters/{id}"

// DefaultNavigationTimeout bounds page navigation.
const DefaultNavigationTimeout = 20 * time.Second

// DefaultSettleDelay is how long a page is given to render after loading.
const DefaultSettleDelay = 3 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; LastSeen/1.0)"

// Session fetches profile pages. Sessions are used sequentially or
// concurrently by a single run and released with Close.
type Session interface {
	// Fetch returns the visible text of id's profile page.
	Fetch(ctx context.Context, id string) (string, error)
	Close() error
}

// Opener acquires a Session for one run.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Error represents a failure to fetch one profile page.
type Error struct {
	ID      string
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s (%s): %s: %v", e.ID, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s (%s): %s", e.ID, e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures fetching.
type Options struct {
	// URLTemplate builds the page URL from an identifier; see ProfileURL.
	URLTemplate string
	// NavigationTimeout bounds loading one page: the browser navigation, or
	// the whole HTTP request including the body read. The per-profile budget
	// set by the batch FetchTimeout still applies on top of it.
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	UserAgent         string
	Logger            *zap.Logger
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		URLTemplate:       DefaultProfileURLTemplate,
		NavigationTimeout: DefaultNavigationTimeout,
		SettleDelay:       DefaultSettleDelay,
		UserAgent:         DefaultUserAgent,
		Logger:            zap.NewNop(),
	}
}

// normalize fills zero fields from DefaultOptions. SettleDelay may be zero.
func normalize(opts *Options) *Options {
	defaults := DefaultOptions()
	if opts == nil {
		return defaults
	}
	o := *opts
	if o.URLTemplate == "" {
		o.URLTemplate = defaults.URLTemplate
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = defaults.NavigationTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = defaults.UserAgent
	}
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}
	return &o
}

// ProfileURL substitutes the path-escaped id into template's {id} placeholder.
// A template without a placeholder gets the id appended as a path segment.
func ProfileURL(template, id string) string {
	escaped := url.PathEscape(id)
	if strings.Contains(template, "{id}") {
		return strings.ReplaceAll(template, "{id}", escaped)
	}
	return strings.TrimSuffix(template, "/") + "/" + escaped
}

// cleanWhitespace normalizes whitespace in text.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
