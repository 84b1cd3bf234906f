package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tourism-cli/internal/db"
	"github.com/sells-group/tourism-cli/internal/model"
)

const schema = "tourism"

// PostgresStore implements Store on PostgreSQL with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	srid    int
	closeFn func()
}

// NewPostgres connects to PostgreSQL. srid tags stored geometries.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig, srid int) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, srid: srid, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS tourism;

CREATE TABLE IF NOT EXISTS tourism.runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	city       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     JSONB NOT NULL,
	summary    JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tourism.pois (
	run_id        TEXT NOT NULL REFERENCES tourism.runs(id) ON DELETE CASCADE,
	poi_id        TEXT NOT NULL,
	name          TEXT,
	category      TEXT NOT NULL,
	weight_summer DOUBLE PRECISION,
	weight_winter DOUBLE PRECISION,
	geom_wkb      BYTEA NOT NULL,
	geom          geometry(Point) GENERATED ALWAYS AS (ST_GeomFromEWKB(geom_wkb)) STORED,
	PRIMARY KEY (run_id, poi_id)
);

CREATE TABLE IF NOT EXISTS tourism.isochrones (
	run_id          TEXT NOT NULL REFERENCES tourism.runs(id) ON DELETE CASCADE,
	poi_id          TEXT NOT NULL,
	category        TEXT NOT NULL,
	budget_minutes  DOUBLE PRECISION NOT NULL,
	max_distance    DOUBLE PRECISION NOT NULL,
	reachable_nodes INTEGER NOT NULL,
	geom_wkb        BYTEA NOT NULL,
	geom            geometry(Polygon) GENERATED ALWAYS AS (ST_GeomFromEWKB(geom_wkb)) STORED,
	PRIMARY KEY (run_id, poi_id, budget_minutes)
);

CREATE TABLE IF NOT EXISTS tourism.opportunity_cells (
	run_id         TEXT NOT NULL REFERENCES tourism.runs(id) ON DELETE CASCADE,
	grid_id        TEXT NOT NULL,
	x              DOUBLE PRECISION NOT NULL,
	y              DOUBLE PRECISION NOT NULL,
	poi_count      INTEGER NOT NULL,
	hotspot_value  DOUBLE PRECISION NOT NULL,
	potential      DOUBLE PRECISION NOT NULL,
	high_potential BOOLEAN NOT NULL,
	geom_wkb       BYTEA NOT NULL,
	geom           geometry(Point) GENERATED ALWAYS AS (ST_GeomFromEWKB(geom_wkb)) STORED,
	PRIMARY KEY (run_id, grid_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON tourism.runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_city ON tourism.runs(city);
CREATE INDEX IF NOT EXISTS idx_isochrones_geom ON tourism.isochrones USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_cells_geom ON tourism.opportunity_cells USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_cells_high ON tourism.opportunity_cells(run_id) WHERE high_potential;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, city string, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tourism.runs (id, city, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, city, string(model.RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		City:      city,
		Status:    model.RunStatusRunning,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tourism.runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tourism.runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		msg, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

const runColumns = `id, city, status, params, summary, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM tourism.runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM tourism.runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.City != "" {
		query += fmt.Sprintf(` AND city = $%d`, argIdx)
		args = append(args, filter.City)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var params []byte
	var summary *[]byte
	var runErr *string
	var status string
	if err := row.Scan(&r.ID, &r.City, &status, &params, &summary, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := decodeRun(&r, params, summary, runErr); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) SavePOIs(ctx context.Context, runID string, pois []model.POI) (int64, error) {
	rows, err := poiRows(runID, pois, s.srid)
	if err != nil {
		return 0, err
	}
	n, err := db.CopyFromSchema(ctx, s.pool, schema, "pois", poiColumns, rows)
	return n, eris.Wrapf(err, "postgres: save pois for run %s", runID)
}

func (s *PostgresStore) SaveIsochrones(ctx context.Context, runID string, isos []model.Isochrone) (int64, error) {
	rows, err := isochroneRows(runID, isos, s.srid)
	if err != nil {
		return 0, err
	}
	n, err := db.CopyFromSchema(ctx, s.pool, schema, "isochrones", isochroneColumns, rows)
	return n, eris.Wrapf(err, "postgres: save isochrones for run %s", runID)
}

// SaveCells upserts cells so a rescored run replaces its previous values.
func (s *PostgresStore) SaveCells(ctx context.Context, runID string, cells []model.OpportunityCell) (int64, error) {
	rows, err := cellRows(runID, cells, s.srid)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        schema + ".opportunity_cells",
		Columns:      cellColumns,
		ConflictKeys: []string{"run_id", "grid_id"},
	}, rows)
	return n, eris.Wrapf(err, "postgres: save cells for run %s", runID)
}

func (s *PostgresStore) ListIsochrones(ctx context.Context, runID string) ([]model.Isochrone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT poi_id, category, budget_minutes, max_distance, reachable_nodes, geom_wkb
		FROM tourism.isochrones WHERE run_id = $1 ORDER BY poi_id, budget_minutes`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list isochrones %s", runID)
	}
	defer rows.Close()

	var isos []model.Isochrone
	for rows.Next() {
		var (
			iso      model.Isochrone
			category string
			wkb      []byte
		)
		if err := rows.Scan(&iso.POIID, &category, &iso.BudgetMinutes, &iso.MaxDistance, &iso.ReachableNodes, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgres: scan isochrone")
		}
		iso.Category = model.Category(category)
		if iso.Polygon, err = decodePolygon(wkb); err != nil {
			return nil, eris.Wrapf(err, "postgres: isochrone %s/%g", iso.POIID, iso.BudgetMinutes)
		}
		isos = append(isos, iso)
	}
	return isos, eris.Wrap(rows.Err(), "postgres: list isochrones iterate")
}

func (s *PostgresStore) ListCells(ctx context.Context, runID string, highOnly bool) ([]model.OpportunityCell, error) {
	query := `SELECT grid_id, x, y, poi_count, hotspot_value, potential, high_potential
		FROM tourism.opportunity_cells WHERE run_id = $1`
	if highOnly {
		query += ` AND high_potential`
	}
	query += ` ORDER BY substring(grid_id from 6)::int, grid_id`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list cells %s", runID)
	}
	defer rows.Close()

	var cells []model.OpportunityCell
	for rows.Next() {
		var c model.OpportunityCell
		if err := rows.Scan(&c.ID, &c.X, &c.Y, &c.POICount, &c.HotspotValue, &c.Potential, &c.HighPotential); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell")
		}
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "postgres: list cells iterate")
}
