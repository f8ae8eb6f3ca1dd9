// Package browser drives a real headless browser session against the
// registry's rendered search page: locate the search input heuristically,
// submit the query, scrape the results table from the live DOM. Slower
// than the postback replay, but survives markup and script changes that
// break the raw protocol.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
	"github.com/chromedp/chromedp"

	"github.com/regsalud/exequatur/htmlutil"
	"github.com/regsalud/exequatur/registry"
)

// markerAttr tags the search input once located, so later actions address
// it without re-running the heuristics.
const (
	markerAttr     = "data-registry-search"
	markerSelector = "[" + markerAttr + "]"
)

// defaultInputSelectors is the ordered fallback chain for locating the
// search input. First visible match wins; the page's markup is unstable,
// so specific guesses come before generic ones.
var defaultInputSelectors = []string{
	`input[type="search"]`,
	`input[placeholder*="Buscar" i]`,
	`input[placeholder*="Cédula" i]`,
	`input[placeholder*="Cedula" i]`,
	`input[name*="search" i]`,
	`input[name*="cedula" i]`,
	`input[name*="nombre" i]`,
	`input[type="text"]`,
}

// defaultButtonLabels is the ordered fallback chain for the submit button,
// matched against visible button text (lowercased). A submit-typed element
// is tried after these, and Enter in the input is the last resort.
var defaultButtonLabels = []string{"buscar", "consultar"}

// Source is a browser-driven retrieval strategy. Each FetchCandidates call
// owns a disposable browser session; nothing is shared between calls.
type Source struct {
	url            string
	loadTimeout    time.Duration
	settleDelay    time.Duration
	resultsDelay   time.Duration
	inputSelectors []string
	buttonLabels   []string
	logger         *slog.Logger
}

// Option configures a Source.
type Option func(*config)

type config struct {
	loadTimeout    time.Duration
	settleDelay    time.Duration
	resultsDelay   time.Duration
	inputSelectors []string
	buttonLabels   []string
	logger         *slog.Logger
}

// WithLoadTimeout bounds the initial page navigation.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *config) { c.loadTimeout = d }
}

// WithSettleDelay sets the fixed wait for client-side scripts to assemble
// the search UI after navigation.
func WithSettleDelay(d time.Duration) Option {
	return func(c *config) { c.settleDelay = d }
}

// WithResultsDelay sets the fixed wait for results to render after submission.
func WithResultsDelay(d time.Duration) Option {
	return func(c *config) { c.resultsDelay = d }
}

// WithInputSelectors replaces the input fallback chain.
func WithInputSelectors(selectors ...string) Option {
	return func(c *config) { c.inputSelectors = selectors }
}

// WithButtonLabels replaces the submit-button fallback chain.
func WithButtonLabels(labels ...string) Option {
	return func(c *config) { c.buttonLabels = labels }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a browser Source for the registry search page URL.
func New(pageURL string, opts ...Option) (*Source, error) {
	if pageURL == "" {
		return nil, fmt.Errorf("browser: page URL required")
	}
	cfg := &config{
		loadTimeout:    45 * time.Second,
		settleDelay:    1500 * time.Millisecond,
		resultsDelay:   3500 * time.Millisecond,
		inputSelectors: defaultInputSelectors,
		buttonLabels:   defaultButtonLabels,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Source{
		url:            pageURL,
		loadTimeout:    cfg.loadTimeout,
		settleDelay:    cfg.settleDelay,
		resultsDelay:   cfg.resultsDelay,
		inputSelectors: cfg.inputSelectors,
		buttonLabels:   cfg.buttonLabels,
		logger:         cfg.logger,
	}, nil
}

// FetchCandidates runs one disposable browser session. The session is torn
// down on every exit path, including timeouts.
func (s *Source) FetchCandidates(ctx context.Context, q registry.Query) ([]registry.Record, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	s.logger.InfoContext(ctx, "consulting registry via browser", "url", s.url, "term", q.Term())

	if err := s.navigate(browserCtx); err != nil {
		return nil, fmt.Errorf("registry page did not load: %w", err)
	}

	inputSel, err := s.locateInput(browserCtx)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "located search input", "selector", inputSel)

	if err := chromedp.Run(browserCtx,
		chromedp.SendKeys(markerSelector, q.Term(), chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("fill search input: %w", err)
	}

	s.submit(browserCtx)

	if err := chromedp.Run(browserCtx, chromedp.Sleep(s.resultsDelay)); err != nil {
		return nil, fmt.Errorf("wait for results: %w", err)
	}

	return s.scrape(browserCtx, q)
}

func (s *Source) navigate(browserCtx context.Context) error {
	navCtx, cancel := context.WithTimeout(browserCtx, s.loadTimeout)
	defer cancel()

	return chromedp.Run(navCtx,
		chromedp.Navigate(s.url),
		chromedp.Sleep(s.settleDelay),
	)
}

// locateInput walks the selector chain in the page and tags the first
// visible match with the marker attribute.
func (s *Source) locateInput(browserCtx context.Context) (string, error) {
	var matched string
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(locateInputJS(s.inputSelectors), &matched),
	); err != nil {
		return "", fmt.Errorf("locate search input: %w", err)
	}
	if matched == "" {
		return "", registry.ErrSearchUnavailable
	}
	return matched, nil
}

// submit is best effort: try the button chain, fall back to pressing Enter
// in the input. Failures are swallowed; the page may submit on input alone,
// and the result scrape decides what actually happened.
func (s *Source) submit(browserCtx context.Context) {
	var clicked bool
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(clickButtonJS(s.buttonLabels), &clicked),
	); err != nil {
		s.logger.Debug("button click heuristics failed", "error", err)
	}
	if clicked {
		return
	}
	if err := chromedp.Run(browserCtx,
		chromedp.SendKeys(markerSelector, kb.Enter, chromedp.ByQuery),
	); err != nil {
		s.logger.Debug("enter-key fallback failed", "error", err)
	}
}

func (s *Source) scrape(browserCtx context.Context, q registry.Query) ([]registry.Record, error) {
	var cells []string
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(firstRowJS, &cells)); err != nil {
		return nil, fmt.Errorf("scrape results table: %w", err)
	}

	if len(cells) > 0 {
		record := registry.FromRow(nil, cells, registry.InteractiveColumns)
		if conflicting(q, record) {
			s.logger.Debug("discarding row with conflicting identity number",
				"row_identity", record.IdentityDigits(), "query_identity", q.IDNumber)
			return nil, nil
		}
		return []registry.Record{record}, nil
	}

	var bodyText string
	if err := chromedp.Run(browserCtx,
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
	); err != nil {
		s.logger.Debug("body text read failed", "error", err)
	}
	if htmlutil.NoResults(bodyText) {
		return nil, nil
	}

	// Neither rows nor a recognizable message. Treated as empty; logged so
	// an operator can tell drift from a genuine miss.
	s.logger.Debug("ambiguous empty result state", "body_length", len(bodyText))
	return nil, nil
}

// conflicting reports whether the scraped identity digits contradict the
// queried ones. Rows without an identity column never conflict.
func conflicting(q registry.Query, record registry.Record) bool {
	if q.IDNumber == "" {
		return false
	}
	rowDigits := record.IdentityDigits()
	return rowDigits != "" && rowDigits != q.IDNumber
}

func locateInputJS(selectors []string) string {
	sels, _ := json.Marshal(selectors) //nolint:errcheck // []string always marshals
	return fmt.Sprintf(`(() => {
	const sels = %s;
	for (const sel of sels) {
		for (const el of document.querySelectorAll(sel)) {
			const style = window.getComputedStyle(el);
			if (el.offsetParent === null || style.visibility === 'hidden') continue;
			el.setAttribute(%q, '');
			return sel;
		}
	}
	return '';
})()`, sels, markerAttr)
}

func clickButtonJS(labels []string) string {
	lowered := make([]string, len(labels))
	for i, l := range labels {
		lowered[i] = strings.ToLower(l)
	}
	labelsJSON, _ := json.Marshal(lowered) //nolint:errcheck // []string always marshals
	return fmt.Sprintf(`(() => {
	const labels = %s;
	const buttons = Array.from(document.querySelectorAll('button, input[type="submit"], input[type="button"]'));
	const visible = b => b.offsetParent !== null;
	for (const label of labels) {
		for (const b of buttons) {
			const text = (b.innerText || b.value || '').trim().toLowerCase();
			if (visible(b) && text.includes(label)) { b.click(); return true; }
		}
	}
	for (const b of buttons) {
		if (visible(b) && (b.type || '').toLowerCase() === 'submit') { b.click(); return true; }
	}
	return false;
})()`, labelsJSON)
}

// firstRowJS scrapes the first result row's non-empty cells.
const firstRowJS = `(() => {
	const row = document.querySelector('table tbody tr');
	if (!row) return [];
	return Array.from(row.querySelectorAll('td'))
		.map(td => td.innerText.trim())
		.filter(t => t.length > 0);
})()`

// Ensure Source implements the retrieval capability.
var _ registry.Source = (*Source)(nil)
