package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKEGGRESTExtractor(t *testing.T) {
	doc := "ENTRY       C00031                      Compound\nNAME        D-Glucose;\nFORMULA     C6H12O6\nEXACT_MASS  180.0634\n///\n"
	code, err := keggREST([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "C6H12O6", code)

	code, err = keggREST([]byte("ENTRY G00001 Glycan\n///\n"))
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestLabelledExtractors(t *testing.T) {
	cases := []struct {
		name    string
		locator string
		doc     string
		want    string
	}{
		{
			name:    "chebi table",
			locator: "https://www.ebi.ac.uk/chebi/searchId.do?chebiId=15377",
			doc:     `<html><body><table><tr><td>Formula</td><td>H2O</td></tr></table></body></html>`,
			want:    "H2O",
		},
		{
			name:    "drugbank definition list",
			locator: "https://go.drugbank.com/drugs/DB00122",
			doc:     `<html><body><dl><dt>Weight</dt><dd>104.17</dd><dt>Chemical Formula</dt><dd>C5H14NO<sup>+</sup></dd></dl></body></html>`,
			want:    "C5H14NO+",
		},
		{
			name:    "pubchem summary",
			locator: "https://pubchem.ncbi.nlm.nih.gov/summary/summary.cgi?cid=5793",
			doc:     `<html><body><dl><dt>MF:</dt><dd>C6H12O6</dd></dl></body></html>`,
			want:    "C6H12O6",
		},
		{
			name:    "knapsack",
			locator: "http://www.knapsackfamily.com/knapsack_core/information.php?word=C00000001",
			doc:     `<html><body><table><tr><th>Formula</th><td>C10H16</td></tr></table></body></html>`,
			want:    "C10H16",
		},
		{
			name:    "3dmet without formula",
			locator: "http://www.3dmet.dna.affrc.go.jp/cgi/show_data.php?acid=B00001",
			doc:     `<html><body><table><tr><th>Name</th><td>x</td></tr></table></body></html>`,
			want:    "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			extract := extractorFor(tc.locator)
			require.NotNil(t, extract)
			got, err := extract([]byte(tc.doc))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestXPathExtractors(t *testing.T) {
	lm := `<html><body><table><tr><td>Name</td><td>Palmitic acid</td></tr><tr><td> Formula </td><td>C16H32O2</td></tr></table></body></html>`
	got, err := extractorFor("https://www.lipidmaps.org/databases/lmsd/LMFA01010001")([]byte(lm))
	require.NoError(t, err)
	assert.Equal(t, "C16H32O2", got)

	lb := `<html><body><p><b>FORMULA</b>: C18H36O2 MOL.WT 284.48</p></body></html>`
	got, err = extractorFor("http://lipidbank.jp/cgi-bin/detail.cgi?id=DFA0001")([]byte(lb))
	require.NoError(t, err)
	assert.Equal(t, "C18H36O2", got)
}

func TestUnknownSiteHasNoExtractor(t *testing.T) {
	assert.Nil(t, extractorFor("http://jglobal.jst.go.jp/public/J1.234"))
}
