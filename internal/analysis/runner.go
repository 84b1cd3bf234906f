// Package analysis runs the full tourism opportunity workflow: it clips POIs
// to a city boundary, estimates their density, scores the opportunity grid
// and computes walking isochrones for a selection of source POIs.
package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tourism-cli/internal/density"
	"github.com/sells-group/tourism-cli/internal/isochrone"
	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/network"
	"github.com/sells-group/tourism-cli/internal/opportunity"
	"github.com/sells-group/tourism-cli/internal/poi"
	"github.com/sells-group/tourism-cli/internal/store"
)

const defaultWorkers = 8

// Inputs are the datasets of one city. Network may be nil, in which case
// no isochrones are computed.
type Inputs struct {
	City     string
	Boundary geom.T
	POIs     []model.POI
	Network  *network.Graph
}

// Skipped records a source POI, or one budget of it, that produced no isochrone.
type Skipped struct {
	POIID         string  `json:"poi_id"`
	BudgetMinutes float64 `json:"budget_minutes,omitempty"`
	Reason        string  `json:"reason"`
}

// Result is everything one run produced.
type Result struct {
	RunID      string
	City       string
	Params     model.RunParams
	POIs       []model.POI
	Surface    *model.DensitySurface
	Grid       *model.OpportunityGrid
	Isochrones []model.Isochrone
	Skipped    []Skipped
	Categories map[model.Category]int
	Summary    model.RunSummary
}

// Runner orchestrates analysis runs.
type Runner struct {
	log   *zap.Logger
	store store.Store
	rules poi.SeasonRules
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists every run and its outputs to st.
func WithStore(st store.Store) Option {
	return func(r *Runner) {
		r.store = st
	}
}

// WithSeasonRules replaces the built-in season rules.
func WithSeasonRules(rules poi.SeasonRules) Option {
	return func(r *Runner) {
		r.rules = rules
	}
}

// NewRunner creates a Runner. A nil logger uses the global zap logger.
func NewRunner(log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.L()
	}
	r := &Runner{
		log:   log.With(zap.String("component", "analysis")),
		rules: poi.DefaultSeasonRules(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func workers(p model.RunParams) int {
	if p.Workers > 0 {
		return p.Workers
	}
	return defaultWorkers
}

// Isochrones computes one isochrone per budget for every source. A source
// that cannot be snapped, or a budget that reaches too few nodes, is logged
// and skipped. Output is ordered by source index, then ascending budget.
func (r *Runner) Isochrones(ctx context.Context, g *network.Graph, sources []model.POI, p model.RunParams) ([]model.Isochrone, []Skipped, error) {
	if g == nil {
		return nil, nil, eris.New("analysis: no network")
	}
	budgets := p.Budgets
	if len(budgets) == 0 {
		budgets = isochrone.DefaultBudgets
	}
	speed := p.WalkingSpeedKMPH
	if speed == 0 {
		speed = isochrone.DefaultSpeedKMPH
	}
	if speed < 0 {
		return nil, nil, eris.Wrapf(isochrone.ErrInvalidBudget, "analysis: walking speed %v", speed)
	}
	for _, b := range budgets {
		if b <= 0 {
			return nil, nil, eris.Wrapf(isochrone.ErrInvalidBudget, "analysis: budget %v minutes", b)
		}
	}

	engine := isochrone.NewEngine(g, isochrone.WithSpeed(speed), isochrone.WithMaxSnapDistance(p.MaxSnapDistance))

	type sourceResult struct {
		isos    []model.Isochrone
		skipped []Skipped
	}
	per := make([]sourceResult, len(sources))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers(p))

	for i, src := range sources {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log := r.log.With(zap.String("poi_id", src.ID))

			results, err := engine.ComputeBatch(src.X, src.Y, budgets)
			if err != nil {
				log.Warn("analysis: skipping isochrone source", zap.Error(err))
				per[i].skipped = append(per[i].skipped, Skipped{POIID: src.ID, Reason: err.Error()})
				return nil
			}
			for _, res := range results {
				if res.Err != nil {
					log.Warn("analysis: skipping isochrone budget",
						zap.Float64("budget_minutes", res.BudgetMinutes),
						zap.Int("reachable_nodes", res.ReachableNodes),
						zap.Error(res.Err),
					)
					per[i].skipped = append(per[i].skipped, Skipped{POIID: src.ID, BudgetMinutes: res.BudgetMinutes, Reason: res.Err.Error()})
					continue
				}
				per[i].isos = append(per[i].isos, model.Isochrone{
					POIID:          src.ID,
					Category:       src.Category,
					BudgetMinutes:  res.BudgetMinutes,
					MaxDistance:    res.MaxDistance,
					ReachableNodes: res.ReachableNodes,
					Polygon:        res.Polygon,
				})
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "analysis: compute isochrones")
	}

	var isos []model.Isochrone
	var skipped []Skipped
	for _, sr := range per {
		isos = append(isos, sr.isos...)
		skipped = append(skipped, sr.skipped...)
	}
	return isos, skipped, nil
}

// Prepare categorizes POIs that have no category yet and attaches season
// weights to POIs that do not carry their own. The input slice is not
// modified.
func (r *Runner) Prepare(pois []model.POI) []model.POI {
	weigh := poi.SeasonWeigher(r.rules)
	return poi.Transform(pois, func(p model.POI) model.POI {
		if !p.Category.Valid() {
			p = poi.WithCategory(p)
		}
		if p.Seasons == nil {
			p = weigh(p)
		}
		return p
	})
}

// Density estimates the POI density surface, weighted by season when
// p.Season is set.
func (r *Runner) Density(pois []model.POI, p model.RunParams) (*model.DensitySurface, error) {
	resolution := p.KDEResolution
	if resolution == 0 {
		resolution = density.DefaultResolution
	}
	coords := poi.Coords(pois)
	if p.Season == "" {
		return density.Estimate(coords, resolution, density.WithWorkers(workers(p)))
	}
	weights, err := poi.SeasonalWeights(pois, p.Season)
	if err != nil {
		return nil, err
	}
	return density.EstimateWeighted(coords, weights, resolution, density.WithWorkers(workers(p)))
}

// Run executes the whole workflow for one city. Insufficient density input
// aborts the run; isochrone failures are skipped per source.
func (r *Runner) Run(ctx context.Context, in Inputs, p model.RunParams) (res *Result, err error) {
	log := r.log.With(zap.String("city", in.City))
	if in.Boundary == nil {
		return nil, eris.New("analysis: boundary is required")
	}

	res = &Result{City: in.City, Params: p}
	if r.store != nil {
		run, cErr := r.store.CreateRun(ctx, in.City, p)
		if cErr != nil {
			return nil, eris.Wrap(cErr, "analysis: create run")
		}
		runID := run.ID
		res.RunID = runID
		log = log.With(zap.String("run_id", runID))
		defer func() {
			if err == nil {
				return
			}
			if fErr := r.store.FailRun(context.WithoutCancel(ctx), runID, err); fErr != nil {
				log.Warn("analysis: failed to mark run failed", zap.Error(fErr))
			}
		}()
	}

	log.Info("analysis: starting run", zap.Int("pois", len(in.POIs)))

	prepared := r.Prepare(in.POIs)
	inside, err := poi.WithinBoundary(prepared, in.Boundary)
	if err != nil {
		return nil, err
	}
	res.POIs = inside
	res.Categories = poi.CountByCategory(inside)

	res.Surface, err = r.Density(inside, p)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: estimate density")
	}

	cellSize := p.CellSize
	if cellSize == 0 {
		cellSize = opportunity.DefaultCellSize
	}
	buffer := p.BufferRadius
	if buffer == 0 {
		buffer = opportunity.DefaultBufferRadius
	}
	opts := []opportunity.Option{opportunity.WithWorkers(workers(p))}
	if p.Quantile > 0 {
		opts = append(opts, opportunity.WithQuantile(p.Quantile))
	}
	res.Grid, err = opportunity.Score(in.Boundary, inside, res.Surface, cellSize, buffer, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: score opportunity grid")
	}

	var sources []model.POI
	if in.Network != nil {
		sources = poi.SelectSources(inside, p.SourceCategories, p.SourcesPerCategory)
		res.Isochrones, res.Skipped, err = r.Isochrones(ctx, in.Network, sources, p)
		if err != nil {
			return nil, err
		}
	}

	res.Summary = summarize(in, res, len(sources))

	if r.store != nil {
		if err := r.persist(ctx, res); err != nil {
			return nil, err
		}
	}

	log.Info("analysis: run complete",
		zap.Int("pois_in_boundary", res.Summary.POIsInBoundary),
		zap.Int("isochrones", res.Summary.Isochrones),
		zap.Int("cells", res.Summary.Cells),
		zap.Int("high_potential", res.Summary.HighPotential),
	)
	return res, nil
}

func summarize(in Inputs, res *Result, sources int) model.RunSummary {
	skippedSources := make(map[string]bool)
	for _, s := range res.Skipped {
		skippedSources[s.POIID] = true
	}
	return model.RunSummary{
		POIs:           len(in.POIs),
		POIsInBoundary: len(res.POIs),
		Sources:        sources,
		Isochrones:     len(res.Isochrones),
		SkippedSources: len(skippedSources),
		DensitySamples: len(res.Surface.Samples),
		Cells:          len(res.Grid.Cells),
		HighPotential:  len(res.Grid.HighPotential()),
		Threshold:      res.Grid.Threshold,
		Degenerate:     res.Grid.Degenerate,
	}
}

func (r *Runner) persist(ctx context.Context, res *Result) error {
	if _, err := r.store.SavePOIs(ctx, res.RunID, res.POIs); err != nil {
		return eris.Wrap(err, "analysis: save pois")
	}
	if _, err := r.store.SaveIsochrones(ctx, res.RunID, res.Isochrones); err != nil {
		return eris.Wrap(err, "analysis: save isochrones")
	}
	if _, err := r.store.SaveCells(ctx, res.RunID, res.Grid.Cells); err != nil {
		return eris.Wrap(err, "analysis: save cells")
	}
	summary := res.Summary
	if err := r.store.CompleteRun(ctx, res.RunID, &summary); err != nil {
		return eris.Wrap(err, "analysis: complete run")
	}
	return nil
}

// SortedCategories returns the non-empty categories in display order.
func SortedCategories(counts map[model.Category]int) []model.Category {
	out := make([]model.Category, 0, len(counts))
	for _, c := range model.Categories {
		if counts[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}
