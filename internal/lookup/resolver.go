// Package lookup resolves chemical formulas of external references by
// fetching and scraping their source databases.
package lookup

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/pkg/domain/formula"
	"interactiondb/pkg/domain/urn"
)

const keggDBGet = "genome.jp/dbget-bin/www_bget?"

// Resolver turns URNs into candidate formulas. Lookups are memoised per
// locator, including locators that carry no formula.
type Resolver struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu   sync.Mutex
	memo map[string]*formula.Formula
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for fetch warnings.
func WithLogger(l zerolog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// NewResolver returns a resolver reading documents through f.
func NewResolver(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: f, logger: zerolog.Nop(), memo: make(map[string]*formula.Formula)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CandidateFormulas returns the distinct formulas found at the known
// locations of ref. Unreachable locations are skipped; a malformed formula
// aborts the lookup.
func (r *Resolver) CandidateFormulas(ctx context.Context, ref string) ([]formula.Formula, error) {
	u, err := urn.Parse(ref)
	if err != nil {
		return nil, nil
	}
	var out []formula.Formula
	for _, loc := range u.Locations() {
		f, err := r.FormulaAt(ctx, loc)
		if err != nil {
			var malformed *formula.MalformedError
			if errors.As(err, &malformed) {
				return nil, err
			}
			r.logger.Warn().Err(err).Str("urn", ref).Str("locator", loc).Msg("formula lookup failed")
			continue
		}
		if f == nil || containsFormula(out, *f) {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

// FormulaAt resolves the formula published at locator. A nil formula means
// the document has none or no extractor knows the site.
func (r *Resolver) FormulaAt(ctx context.Context, locator string) (*formula.Formula, error) {
	locator = rewriteKEGG(locator)
	r.mu.Lock()
	f, ok := r.memo[locator]
	r.mu.Unlock()
	if ok {
		return f, nil
	}
	extract := extractorFor(locator)
	if extract == nil {
		r.remember(locator, nil)
		return nil, nil
	}
	doc, err := r.fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	code, err := extract(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "extract formula from %s", locator)
	}
	code = strings.TrimSpace(code)
	if code == "" || code == "-" {
		r.remember(locator, nil)
		return nil, nil
	}
	parsed, err := formula.Parse(code)
	if err != nil {
		return nil, errors.Wrapf(err, "formula at %s", locator)
	}
	r.remember(locator, &parsed)
	return &parsed, nil
}

func (r *Resolver) remember(locator string, f *formula.Formula) {
	r.mu.Lock()
	r.memo[locator] = f
	r.mu.Unlock()
}

// rewriteKEGG maps KEGG dbget pages onto the REST API. The entry id starts
// at the last upper case letter of the query.
func rewriteKEGG(locator string) string {
	idx := strings.Index(locator, keggDBGet)
	if idx < 0 {
		return locator
	}
	query := locator[idx+len(keggDBGet):]
	start := strings.LastIndexFunc(query, unicode.IsUpper)
	if start < 0 {
		return locator
	}
	return "http://rest.kegg.jp/get/" + query[start:]
}

func containsFormula(list []formula.Formula, f formula.Formula) bool {
	for _, existing := range list {
		if existing.Equal(f) {
			return true
		}
	}
	return false
}
