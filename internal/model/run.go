package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records the parameters an analysis run was executed with.
type RunParams struct {
	Budgets          []float64 `json:"budgets"`
	WalkingSpeedKMPH float64   `json:"walking_speed_kmph"`
	MaxSnapDistance  float64   `json:"max_snap_distance,omitempty"`
	CellSize         float64   `json:"cell_size"`
	BufferRadius     float64   `json:"buffer_radius"`
	KDEResolution    int       `json:"kde_resolution"`
	Quantile         float64   `json:"quantile"`
	Workers          int       `json:"workers"`

	Season             string     `json:"season,omitempty"`
	SourceCategories   []Category `json:"source_categories,omitempty"`
	SourcesPerCategory int        `json:"sources_per_category,omitempty"`
}

// RunSummary holds the headline numbers of a finished run.
type RunSummary struct {
	POIs           int     `json:"pois"`
	POIsInBoundary int     `json:"pois_in_boundary"`
	Sources        int     `json:"sources"`
	Isochrones     int     `json:"isochrones"`
	SkippedSources int     `json:"skipped_sources"`
	DensitySamples int     `json:"density_samples"`
	Cells          int     `json:"cells"`
	HighPotential  int     `json:"high_potential"`
	Threshold      float64 `json:"threshold"`
	Degenerate     bool    `json:"degenerate"`
}

// Run is one persisted analysis run.
type Run struct {
	ID        string      `json:"id"`
	City      string      `json:"city"`
	Status    RunStatus   `json:"status"`
	Params    RunParams   `json:"params"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
