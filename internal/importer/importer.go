// Package importer feeds newline delimited JSON records into the core
// service, one record per line.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"interactiondb/internal/core"
	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
)

// Record kinds.
const (
	KindSubstance   = "substance"
	KindEnzyme      = "enzyme"
	KindCompartment = "compartment"
	KindPathway     = "pathway"
	KindReaction    = "reaction"
)

const maxLine = 4 << 20

// Participant names a substance by reference together with its coefficient.
type Participant struct {
	URN         string          `json:"urn"`
	Coefficient decimal.Decimal `json:"coefficient"`
}

// Line is the wire form of an imported record.
type Line struct {
	Kind         string        `json:"kind"`
	URNs         []string      `json:"urns"`
	Source       string        `json:"source"`
	Names        []string      `json:"names"`
	Formula      string        `json:"formula,omitempty"`
	EC           string        `json:"ec,omitempty"`
	SubstanceURN string        `json:"substance_urn,omitempty"`
	Group        string        `json:"group,omitempty"`
	Spontaneous  bool          `json:"spontaneous,omitempty"`
	Substrates   []Participant `json:"substrates,omitempty"`
	Products     []Participant `json:"products,omitempty"`
}

// Stats counts imported records per kind.
type Stats struct {
	Lines   int
	ByKind  map[string]int
	Entries map[string]domain.EntityID
}

// Importer runs records through a service.
type Importer struct {
	svc    *core.Service
	logger zerolog.Logger
}

// New returns an importer for svc.
func New(svc *core.Service, logger zerolog.Logger) *Importer {
	return &Importer{svc: svc, logger: logger}
}

// Run imports every record of r in order and stops at the first failure.
// Blank lines and lines starting with '#' are skipped.
func (im *Importer) Run(ctx context.Context, r io.Reader) (Stats, error) {
	stats := Stats{ByKind: map[string]int{}, Entries: map[string]domain.EntityID{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		var line Line
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return stats, errors.Wrapf(err, "line %d", n)
		}
		id, err := im.apply(ctx, line)
		if err != nil {
			return stats, errors.Wrapf(err, "line %d (%s)", n, line.Kind)
		}
		stats.Lines++
		stats.ByKind[line.Kind]++
		for _, u := range line.URNs {
			stats.Entries[u] = id
		}
		im.logger.Debug().Int("line", n).Str("kind", line.Kind).Int64("id", int64(id)).Msg("record imported")
	}
	if err := sc.Err(); err != nil {
		return stats, errors.Wrap(err, "read records")
	}
	return stats, nil
}

func (im *Importer) apply(ctx context.Context, l Line) (domain.EntityID, error) {
	base := core.Record{URNs: l.URNs, Source: l.Source, Names: l.Names}
	switch l.Kind {
	case KindSubstance:
		rec := core.SubstanceRecord{Record: base}
		if strings.TrimSpace(l.Formula) != "" {
			f, err := formula.Parse(l.Formula)
			if err != nil {
				return 0, err
			}
			rec.Formula = &f
		}
		return im.svc.CreateSubstance(ctx, rec)
	case KindEnzyme:
		rec := core.EnzymeRecord{Record: base, EC: l.EC}
		if l.SubstanceURN != "" {
			id, err := im.lookup(ctx, l.SubstanceURN)
			if err != nil {
				return 0, err
			}
			rec.Substance = &id
		}
		return im.svc.CreateEnzyme(ctx, rec)
	case KindCompartment:
		return im.svc.CreateCompartment(ctx, core.CompartmentRecord{Record: base, Group: l.Group})
	case KindPathway:
		return im.svc.CreatePathway(ctx, base)
	case KindReaction:
		id, err := im.svc.CreateReaction(ctx, core.ReactionRecord{Record: base, Spontaneous: l.Spontaneous})
		if err != nil {
			return 0, err
		}
		for _, p := range l.Substrates {
			sub, err := im.lookup(ctx, p.URN)
			if err != nil {
				return 0, err
			}
			if err := im.svc.AddSubstrate(ctx, sub, id, coefficient(p.Coefficient)); err != nil {
				return 0, err
			}
		}
		for _, p := range l.Products {
			sub, err := im.lookup(ctx, p.URN)
			if err != nil {
				return 0, err
			}
			if err := im.svc.AddProduct(ctx, sub, id, coefficient(p.Coefficient)); err != nil {
				return 0, err
			}
		}
		return id, nil
	default:
		return 0, errors.Errorf("unknown record kind %q", l.Kind)
	}
}

func (im *Importer) lookup(ctx context.Context, urn string) (domain.EntityID, error) {
	id, ok, err := im.svc.Resolve(ctx, urn)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrNotFound{Entity: domain.EntitySubstance, ID: urn}
	}
	return id, nil
}

// coefficient defaults a missing stoichiometric coefficient to one.
func coefficient(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}
