// Package urn parses the external identifiers used to reference entities in
// source databases and maps them to the locations where they can be resolved.
package urn

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const miriamPrefix = "urn:miriam:"

// URN is a parsed external identifier. Namespace names the source database
// (for example "kegg.compound") and ID the unescaped local identifier.
type URN struct {
	raw       string
	Namespace string
	ID        string
}

// Parse accepts MIRIAM style identifiers ("urn:miriam:kegg.compound:C00001")
// and the short "<namespace>:<id>" form.
func Parse(s string) (URN, error) {
	raw := strings.TrimSpace(s)
	rest := raw
	if strings.HasPrefix(strings.ToLower(rest), miriamPrefix) {
		rest = rest[len(miriamPrefix):]
	}
	idx := strings.Index(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return URN{}, errors.Errorf("invalid urn %q: expected <namespace>:<id>", s)
	}
	id, err := url.PathUnescape(rest[idx+1:])
	if err != nil {
		return URN{}, errors.Wrapf(err, "invalid urn %q", s)
	}
	return URN{raw: raw, Namespace: strings.ToLower(rest[:idx]), ID: id}, nil
}

// String returns the identifier as it was parsed.
func (u URN) String() string { return u.raw }

// Suffix returns the canonical local identifier. Source locators that end
// with it are taken to describe this URN.
func (u URN) Suffix() string { return u.ID }

// Locations returns the resolution URLs known for the URN namespace in a
// stable order. Unknown namespaces resolve nowhere.
func (u URN) Locations() []string {
	templates := locationTemplates[u.Namespace]
	out := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, strings.ReplaceAll(tmpl, "{id}", url.QueryEscape(u.ID)))
	}
	return out
}

var locationTemplates = map[string][]string{
	"kegg.compound": {
		"http://www.genome.jp/dbget-bin/www_bget?cpd:{id}",
		"http://rest.kegg.jp/get/{id}",
	},
	"kegg.glycan": {
		"http://www.genome.jp/dbget-bin/www_bget?gl:{id}",
	},
	"kegg.drug": {
		"http://www.genome.jp/dbget-bin/www_bget?dr:{id}",
	},
	"kegg.reaction": {
		"http://www.genome.jp/dbget-bin/www_bget?rn:{id}",
	},
	"chebi": {
		"https://www.ebi.ac.uk/chebi/searchId.do?chebiId={id}",
	},
	"pubchem.compound": {
		"https://pubchem.ncbi.nlm.nih.gov/summary/summary.cgi?cid={id}",
	},
	"pubchem.substance": {
		"https://pubchem.ncbi.nlm.nih.gov/summary/summary.cgi?sid={id}",
	},
	"drugbank": {
		"https://go.drugbank.com/drugs/{id}",
	},
	"lipidmaps": {
		"https://www.lipidmaps.org/databases/lmsd/{id}",
	},
	"knapsack": {
		"http://www.knapsackfamily.com/knapsack_core/information.php?word={id}",
	},
	"3dmet": {
		"http://www.3dmet.dna.affrc.go.jp/cgi/show_data.php?acid={id}",
	},
	"jcsd": {
		"http://jglobal.jst.go.jp/public/{id}",
	},
	"lipidbank": {
		"http://lipidbank.jp/cgi-bin/detail.cgi?id={id}",
	},
}
