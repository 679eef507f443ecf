package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactiondb/pkg/domain/formula"
)

type fakeFetcher struct {
	docs  map[string]string
	fail  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{docs: map[string]string{}, fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, locator string) ([]byte, error) {
	f.calls[locator]++
	if err, ok := f.fail[locator]; ok {
		return nil, err
	}
	return []byte(f.docs[locator]), nil
}

func TestCandidateFormulasRewritesAndMemoises(t *testing.T) {
	ff := newFakeFetcher()
	ff.docs["http://rest.kegg.jp/get/C00001"] = "ENTRY C00001\nFORMULA     H2O\n///\n"
	r := NewResolver(ff)

	got, err := r.CandidateFormulas(context.Background(), "kegg.compound:C00001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(formula.MustParse("H2O")))
	// dbget and REST locations collapse onto one fetch.
	assert.Equal(t, 1, ff.calls["http://rest.kegg.jp/get/C00001"])

	_, err = r.CandidateFormulas(context.Background(), "urn:miriam:kegg.compound:C00001")
	require.NoError(t, err)
	assert.Equal(t, 1, ff.calls["http://rest.kegg.jp/get/C00001"])
}

func TestCandidateFormulasSkipsUnreachableLocations(t *testing.T) {
	ff := newFakeFetcher()
	ff.fail["http://rest.kegg.jp/get/C00002"] = errors.New("connection refused")
	r := NewResolver(ff)

	got, err := r.CandidateFormulas(context.Background(), "kegg.compound:C00002")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidateFormulasPropagatesMalformedFormula(t *testing.T) {
	ff := newFakeFetcher()
	ff.docs["http://rest.kegg.jp/get/C00003"] = "FORMULA     C6H12O6)\n"
	r := NewResolver(ff)

	_, err := r.CandidateFormulas(context.Background(), "kegg.compound:C00003")
	var malformed *formula.MalformedError
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.Contains(t, err.Error(), "rest.kegg.jp")
}

func TestCandidateFormulasUnknownNamespace(t *testing.T) {
	r := NewResolver(newFakeFetcher())
	got, err := r.CandidateFormulas(context.Background(), "K:C1")
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = r.CandidateFormulas(context.Background(), "not a urn")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormulaAtDashMeansNone(t *testing.T) {
	ff := newFakeFetcher()
	ff.docs["http://rest.kegg.jp/get/C99999"] = "FORMULA     -\n"
	r := NewResolver(ff)
	f, err := r.FormulaAt(context.Background(), "http://www.genome.jp/dbget-bin/www_bget?cpd:C99999")
	require.NoError(t, err)
	assert.Nil(t, f)
	f, err = r.FormulaAt(context.Background(), "http://rest.kegg.jp/get/C99999")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 1, ff.calls["http://rest.kegg.jp/get/C99999"])
}

func TestRewriteKEGG(t *testing.T) {
	assert.Equal(t, "http://rest.kegg.jp/get/C00031", rewriteKEGG("http://www.genome.jp/dbget-bin/www_bget?cpd:C00031"))
	assert.Equal(t, "http://rest.kegg.jp/get/G00001", rewriteKEGG("http://www.genome.jp/dbget-bin/www_bget?gl:G00001"))
	assert.Equal(t, "https://example.org/x", rewriteKEGG("https://example.org/x"))
}

func TestHTTPFetcherRetriesOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("FORMULA     H2O\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	f.Backoff = time.Millisecond
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "FORMULA     H2O\n", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHTTPFetcherGivesUpAfterRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	f.Backoff = time.Millisecond
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
