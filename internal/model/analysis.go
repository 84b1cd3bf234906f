package model

import "github.com/twpayne/go-geom"

// Isochrone is the walkable envelope around a POI for one travel-time budget.
type Isochrone struct {
	POIID          string        `json:"poi_id"`
	Category       Category      `json:"category"`
	BudgetMinutes  float64       `json:"budget_minutes"`
	MaxDistance    float64       `json:"max_distance"`
	ReachableNodes int           `json:"reachable_nodes"`
	Polygon        *geom.Polygon `json:"-"`
}

// DensitySample is one evaluation of the density surface.
type DensitySample struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Density float64 `json:"density"`
}

// DensitySurface is a regular grid of density samples, row-major with y
// outer and x inner.
type DensitySurface struct {
	Resolution      int             `json:"resolution"`
	BandwidthFactor float64         `json:"bandwidth_factor"`
	MinX            float64         `json:"min_x"`
	MinY            float64         `json:"min_y"`
	MaxX            float64         `json:"max_x"`
	MaxY            float64         `json:"max_y"`
	Samples         []DensitySample `json:"samples"`
}

// Peak returns the sample with the highest density. ok is false for an
// empty surface.
func (s *DensitySurface) Peak() (peak DensitySample, ok bool) {
	if s == nil || len(s.Samples) == 0 {
		return DensitySample{}, false
	}
	peak = s.Samples[0]
	for _, smp := range s.Samples[1:] {
		if smp.Density > peak.Density {
			peak = smp
		}
	}
	return peak, true
}

// OpportunityCell is one scored lattice point.
type OpportunityCell struct {
	ID            string  `json:"grid_id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	POICount      int     `json:"poi_count"`
	HotspotValue  float64 `json:"hotspot_value"`
	Potential     float64 `json:"potential"`
	HighPotential bool    `json:"high_potential"`
}

// OpportunityGrid is the result of one scoring run. Potentials are only
// comparable within the same grid.
type OpportunityGrid struct {
	CellSize     float64           `json:"cell_size"`
	BufferRadius float64           `json:"buffer_radius"`
	POICountMax  int               `json:"poi_count_max"`
	HotspotMax   float64           `json:"hotspot_max"`
	Threshold    float64           `json:"threshold"`
	Degenerate   bool              `json:"degenerate"`
	Cells        []OpportunityCell `json:"cells"`
}

// HighPotential returns the flagged cells in grid order.
func (g *OpportunityGrid) HighPotential() []OpportunityCell {
	if g == nil {
		return nil
	}
	var out []OpportunityCell
	for _, c := range g.Cells {
		if c.HighPotential {
			out = append(out, c)
		}
	}
	return out
}
