// Package postback replays the registry's stateful form protocol directly
// over HTTP: clone the hidden form state the server handed out, submit the
// search as if a single button had been pressed, parse the returned table.
// Faster than driving a browser, fragile to server-side state changes.
package postback

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/regsalud/exequatur/htmlutil"
	"github.com/regsalud/exequatur/httpcache"
	"github.com/regsalud/exequatur/registry"
)

const maxBody = 4 << 20 // result pages carry a large state blob

// Source replays the registry's postback protocol. One Source is safe for
// concurrent use: every FetchCandidates call builds its own cookie jar, so
// session state is never shared between requests.
type Source struct {
	entryURL    string
	searchField string // explicit search-term field name; discovered when ""
	submitField string // explicit submit field name; discovered when ""
	timeout     time.Duration
	strictTLS   bool
	cache       httpcache.Cacher
	logger      *slog.Logger
}

// Option configures a Source.
type Option func(*config)

type config struct {
	searchField string
	submitField string
	timeout     time.Duration
	strictTLS   bool
	cache       httpcache.Cacher
	logger      *slog.Logger
}

// WithSearchField pins the form field that receives the search term,
// instead of discovering the first text input.
func WithSearchField(name string) Option {
	return func(c *config) { c.searchField = name }
}

// WithSubmitField pins the submit field reported as pressed, instead of
// discovering the first submit input.
func WithSubmitField(name string) Option {
	return func(c *config) { c.submitField = name }
}

// WithTimeout bounds each FetchCandidates call end to end.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithStrictTLS turns certificate validation back on. The registry host
// serves a chain most trust stores reject, so relaxed validation for this
// one host is the deliberate default.
func WithStrictTLS() Option {
	return func(c *config) { c.strictTLS = true }
}

// WithCache caches the entry-page frame resolution. Session state is never
// cached regardless.
func WithCache(cache httpcache.Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a postback Source for the registry entry URL.
func New(entryURL string, opts ...Option) (*Source, error) {
	if entryURL == "" {
		return nil, fmt.Errorf("postback: entry URL required")
	}
	cfg := &config{timeout: 30 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Source{
		entryURL:    entryURL,
		searchField: cfg.searchField,
		submitField: cfg.submitField,
		timeout:     cfg.timeout,
		strictTLS:   cfg.strictTLS,
		cache:       cfg.cache,
		logger:      cfg.logger,
	}, nil
}

// FetchCandidates performs the GET/GET/POST exchange and returns the parsed
// candidate rows.
func (s *Source) FetchCandidates(ctx context.Context, q registry.Query) ([]registry.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Fresh jar per request: the state token is only valid within the
	// session that issued it.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("postback: cookie jar: %w", err)
	}
	client := &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !s.strictTLS}, //nolint:gosec // legacy registry host, explicit policy
		},
	}
	defer client.CloseIdleConnections()

	appURL, err := s.resolveAppURL(ctx, client)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "replaying registry postback", "app_url", appURL, "term", q.Term())

	formPage, err := s.get(ctx, client, appURL)
	if err != nil {
		return nil, fmt.Errorf("postback: fetch search form: %w", err)
	}

	form, err := htmlutil.ParseForm(strings.NewReader(string(formPage)))
	if err != nil {
		return nil, fmt.Errorf("postback: %w", err)
	}
	if form.StateToken() == "" {
		return nil, registry.ErrFormStateMissing
	}

	values, err := s.submission(form, q.Term())
	if err != nil {
		return nil, err
	}

	resultPage, err := s.post(ctx, client, resolveRef(appURL, form.Action), values)
	if err != nil {
		return nil, fmt.Errorf("postback: submit search: %w", err)
	}

	return s.parseResults(ctx, resultPage)
}

// resolveAppURL finds the frame on the public entry page and resolves it to
// the underlying application URL. The mapping is stable, so it may be
// served from cache.
func (s *Source) resolveAppURL(ctx context.Context, client *http.Client) (string, error) {
	resolve := func(ctx context.Context) ([]byte, error) {
		page, err := s.get(ctx, client, s.entryURL)
		if err != nil {
			return nil, fmt.Errorf("postback: fetch entry page: %w", err)
		}
		src := htmlutil.FrameSrc(string(page))
		if src == "" {
			return nil, registry.ErrNoFrame
		}
		return []byte(resolveRef(s.entryURL, src)), nil
	}

	if s.cache == nil {
		raw, err := resolve(ctx)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	raw, err := s.cache.GetSet(ctx, "frame:"+httpcache.Key(s.entryURL), resolve, s.cache.TTL())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// submission clones every field of the fetched form, then overrides the
// search term and reports exactly one submit field as pressed.
func (s *Source) submission(form *htmlutil.Form, term string) (url.Values, error) {
	values := url.Values{}
	for _, field := range form.Fields {
		if field.Name == "" {
			continue
		}
		values.Set(field.Name, field.Value)
	}

	searchField := s.searchField
	if searchField == "" {
		inputs := form.TextInputs()
		if len(inputs) == 0 {
			return nil, registry.ErrSearchUnavailable
		}
		searchField = inputs[0]
	}
	values.Set(searchField, term)

	// Single-button-press semantics: one submit field in, all others out.
	submits := form.Submits()
	submitField := s.submitField
	if submitField == "" && len(submits) > 0 {
		submitField = submits[0].Name
	}
	for _, submit := range submits {
		if submit.Name == "" || submit.Name == submitField {
			continue
		}
		values.Del(submit.Name)
	}
	if submitField != "" {
		pressed := "Buscar"
		for _, submit := range submits {
			if submit.Name == submitField && submit.Value != "" {
				pressed = submit.Value
			}
		}
		values.Set(submitField, pressed)
	}

	return values, nil
}

func (s *Source) parseResults(ctx context.Context, page []byte) ([]registry.Record, error) {
	table, err := htmlutil.ParseTable(strings.NewReader(string(page)))
	if err != nil {
		return nil, fmt.Errorf("postback: %w", err)
	}

	if len(table.Rows) == 0 {
		if !htmlutil.NoResults(string(page)) {
			// No rows and no recognizable message: treated as empty, but
			// worth a look if it starts happening often.
			s.logger.WarnContext(ctx, "registry returned neither rows nor a no-results message")
		}
		return nil, nil
	}

	records := make([]registry.Record, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := registry.FromRow(table.Headers, row, registry.PostbackColumns)
		if len(record) == 0 {
			continue
		}
		records = append(records, record)
	}

	s.logger.InfoContext(ctx, "parsed registry results", "rows", len(records))
	return records, nil
}

func (s *Source) get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return s.do(client, req)
}

func (s *Source) post(ctx context.Context, client *http.Client, rawURL string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(client, req)
}

func (s *Source) do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // error ignored intentionally

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, req.URL)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// resolveRef resolves a possibly relative reference against base.
func resolveRef(base, ref string) string {
	if ref == "" {
		return base
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

// Ensure Source implements the retrieval capability.
var _ registry.Source = (*Source)(nil)
