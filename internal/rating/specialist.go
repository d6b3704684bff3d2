package rating

import "sort"

// Confidence levels for a category rating.
const (
	ConfidenceEstablished  = "Established"
	ConfidenceEmerging     = "Emerging"
	ConfidenceInsufficient = "Insufficient Data"
)

// Trader types.
const (
	TypeSpecialist    = "Specialist"
	TypeFocusedExpert = "Focused Expert"
	TypeGeneralist    = "Generalist"
	TypeJackOfAll     = "Jack of All Trades"
	TypeInsufficient  = "Insufficient Data"
)

type CategoryRating struct {
	Category        string  `json:"category" yaml:"category"`
	Rating          float64 `json:"rating" yaml:"rating"`
	Updates         int     `json:"updates" yaml:"updates"`
	ResolvedMarkets int     `json:"resolved_markets" yaml:"resolved_markets"`
	Confidence      string  `json:"confidence" yaml:"confidence"`
	// SpecializationPct is how far the category rating sits above (or below)
	// the trader's overall rating, in percent.
	SpecializationPct float64 `json:"specialization_pct" yaml:"specialization_pct"`
}

type Profile struct {
	Trader           string           `json:"trader" yaml:"trader"`
	Overall          float64          `json:"overall" yaml:"overall"`
	Categories       []CategoryRating `json:"categories" yaml:"categories"`
	Established      []string         `json:"established" yaml:"established"`
	PrimarySpecialty string           `json:"primary_specialty" yaml:"primary_specialty"`
	Type             string           `json:"type" yaml:"type"`
}

// Confidence grades a category rating by how many resolved markets back it.
func (e *Engine) Confidence(resolvedMarkets int) string {
	switch {
	case resolvedMarkets >= e.cfg.EstablishedMarkets:
		return ConfidenceEstablished
	case resolvedMarkets >= e.cfg.EmergingMarkets:
		return ConfidenceEmerging
	default:
		return ConfidenceInsufficient
	}
}

// Profile describes a trader's strengths across categories.
func (e *Engine) Profile(trader string) Profile {
	p := Profile{
		Trader:           trader,
		Overall:          e.Overall(trader),
		PrimarySpecialty: "None",
		Type:             TypeInsufficient,
	}

	byCategory := make(map[string]CategoryRating)
	for _, cat := range e.store.Categories(trader) {
		if cat == GlobalCategory && e.category {
			continue
		}
		rec, _ := e.store.Get(trader, cat)
		cr := CategoryRating{
			Category:        cat,
			Rating:          rec.Value,
			Updates:         rec.Updates,
			ResolvedMarkets: rec.ResolvedMarkets,
			Confidence:      e.Confidence(rec.ResolvedMarkets),
		}
		if p.Overall > 0 {
			cr.SpecializationPct = (rec.Value - p.Overall) / p.Overall * 100
		}
		p.Categories = append(p.Categories, cr)
		byCategory[cat] = cr

		if rec.ResolvedMarkets >= e.cfg.EmergingMarkets {
			p.Established = append(p.Established, cat)
		}
	}

	if len(p.Established) == 0 {
		return p
	}

	best := p.Established[0]
	low, high := byCategory[best].Rating, byCategory[best].Rating
	var above, below int
	for _, cat := range p.Established {
		r := byCategory[cat].Rating
		if r > byCategory[best].Rating {
			best = cat
		}
		if r < low {
			low = r
		}
		if r > high {
			high = r
		}
		if r > p.Overall+e.cfg.SpecialtyBand {
			above++
		}
		if r < p.Overall-e.cfg.SpecialtyBand {
			below++
		}
	}
	p.PrimarySpecialty = best

	switch {
	case above == 1 && below >= 2:
		p.Type = TypeSpecialist
	case above >= 2 && below >= 1:
		p.Type = TypeFocusedExpert
	case high-low < e.cfg.SpecialtyBand:
		p.Type = TypeGeneralist
	default:
		p.Type = TypeJackOfAll
	}

	return p
}

// Profiles returns a profile for every rated trader, ordered by overall rating.
func (e *Engine) Profiles() []Profile {
	var out []Profile
	for _, trader := range e.store.Traders() {
		out = append(out, e.Profile(trader))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Overall > out[j].Overall })
	return out
}

// IsSpecialist reports whether the trader's category rating beats their
// overall rating by more than marginPct percent with at least minMarkets
// resolved markets in that category.
func (e *Engine) IsSpecialist(trader, category string, marginPct float64, minMarkets int) bool {
	rec, ok := e.store.Get(trader, category)
	if !ok || rec.ResolvedMarkets < minMarkets {
		return false
	}
	overall := e.Overall(trader)
	if overall <= 0 {
		return false
	}
	return (rec.Value-overall)/overall*100 > marginPct
}
