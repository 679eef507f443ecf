package lookup

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/pkg/errors"
)

// Extractor pulls the raw formula code out of a fetched document. An empty
// result means the document carries no formula.
type Extractor func(doc []byte) (string, error)

type route struct {
	match   string
	extract Extractor
}

// routes are matched in order against the locator.
var routes = []route{
	{"rest.kegg.jp/get/", keggREST},
	{"ebi.ac.uk/chebi", labelled("Formula", "Formulae")},
	{"drugbank.com/drugs", labelled("Chemical Formula")},
	{"drugbank.ca/drugs", labelled("Chemical Formula")},
	{"pubchem.ncbi.nlm.nih.gov", labelled("MF:", "Molecular Formula", "Formula:")},
	{"knapsackfamily.com", labelled("Formula")},
	{"kanaya.naist.jp", labelled("Formula")},
	{"3dmet.dna.affrc.go.jp", labelled("Formula")},
	{"lipidmaps.org", lipidMaps},
	{"lipidbank.jp", lipidBank},
}

func extractorFor(locator string) Extractor {
	for _, r := range routes {
		if strings.Contains(locator, r.match) {
			return r.extract
		}
	}
	return nil
}

// keggREST reads the FORMULA field of a KEGG flat file entry.
func keggREST(doc []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(doc))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "FORMULA") {
			return strings.TrimSpace(strings.TrimPrefix(line, "FORMULA")), nil
		}
	}
	return "", sc.Err()
}

// labelled returns the text of the element following the first table or
// definition cell whose text equals one of labels.
func labelled(labels ...string) Extractor {
	return func(doc []byte) (string, error) {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
		if err != nil {
			return "", errors.Wrap(err, "parse html")
		}
		var value string
		d.Find("th, td, dt, b").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			for _, l := range labels {
				if strings.EqualFold(text, l) {
					value = strings.TrimSpace(s.Next().Text())
					if value == "" {
						value = strings.TrimSpace(s.Parent().Next().Text())
					}
					return false
				}
			}
			return true
		})
		return value, nil
	}
}

func lipidMaps(doc []byte) (string, error) {
	root, err := htmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", errors.Wrap(err, "parse html")
	}
	node, err := htmlquery.Query(root, "//tr[normalize-space(td[1])='Formula']/td[2]")
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), nil
}

func lipidBank(doc []byte) (string, error) {
	root, err := htmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", errors.Wrap(err, "parse html")
	}
	node, err := htmlquery.Query(root, "//*[contains(text(),'FORMULA')]/..")
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", nil
	}
	text := htmlquery.InnerText(node)
	if idx := strings.Index(text, "MOL.WT"); idx > 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "FORMULA")
	text = strings.TrimPrefix(strings.TrimSpace(text), ":")
	return strings.TrimSpace(text), nil
}
