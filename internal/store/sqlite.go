package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tourism-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	srid int
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// srid tags stored geometries.
func NewSQLite(dsn string, srid int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, srid: srid}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT NOT NULL,
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pois (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	poi_id        TEXT NOT NULL,
	name          TEXT,
	category      TEXT NOT NULL,
	weight_summer REAL,
	weight_winter REAL,
	geom_wkb      BLOB NOT NULL,
	PRIMARY KEY (run_id, poi_id)
);

CREATE TABLE IF NOT EXISTS isochrones (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	poi_id          TEXT NOT NULL,
	category        TEXT NOT NULL,
	budget_minutes  REAL NOT NULL,
	max_distance    REAL NOT NULL,
	reachable_nodes INTEGER NOT NULL,
	geom_wkb        BLOB NOT NULL,
	PRIMARY KEY (run_id, poi_id, budget_minutes)
);

CREATE TABLE IF NOT EXISTS opportunity_cells (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	grid_id        TEXT NOT NULL,
	x              REAL NOT NULL,
	y              REAL NOT NULL,
	poi_count      INTEGER NOT NULL,
	hotspot_value  REAL NOT NULL,
	potential      REAL NOT NULL,
	high_potential INTEGER NOT NULL,
	geom_wkb       BLOB NOT NULL,
	PRIMARY KEY (run_id, grid_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_city ON runs(city);
CREATE INDEX IF NOT EXISTS idx_cells_high ON opportunity_cells(run_id, high_potential);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, city string, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, city, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, city, string(model.RunStatusRunning), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		msg, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, city, status, params, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, city, status, params, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SavePOIs(ctx context.Context, runID string, pois []model.POI) (int64, error) {
	rows, err := poiRows(runID, pois, s.srid)
	if err != nil {
		return 0, err
	}
	return s.insertRows(ctx, "pois", poiColumns,
		`INSERT OR REPLACE INTO pois (run_id, poi_id, name, category, weight_summer, weight_winter, geom_wkb) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rows)
}

func (s *SQLiteStore) SaveIsochrones(ctx context.Context, runID string, isos []model.Isochrone) (int64, error) {
	rows, err := isochroneRows(runID, isos, s.srid)
	if err != nil {
		return 0, err
	}
	return s.insertRows(ctx, "isochrones", isochroneColumns,
		`INSERT OR REPLACE INTO isochrones (run_id, poi_id, category, budget_minutes, max_distance, reachable_nodes, geom_wkb) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rows)
}

func (s *SQLiteStore) SaveCells(ctx context.Context, runID string, cells []model.OpportunityCell) (int64, error) {
	rows, err := cellRows(runID, cells, s.srid)
	if err != nil {
		return 0, err
	}
	return s.insertRows(ctx, "opportunity_cells", cellColumns,
		`INSERT INTO opportunity_cells (run_id, grid_id, x, y, poi_count, hotspot_value, potential, high_potential, geom_wkb)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, grid_id) DO UPDATE SET
		   x = excluded.x, y = excluded.y, poi_count = excluded.poi_count,
		   hotspot_value = excluded.hotspot_value, potential = excluded.potential,
		   high_potential = excluded.high_potential, geom_wkb = excluded.geom_wkb`,
		rows)
}

// insertRows runs one prepared statement per row inside a transaction.
func (s *SQLiteStore) insertRows(ctx context.Context, table string, columns []string, stmtSQL string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, eris.Errorf("sqlite: %s row has %d values, want %d", table, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit %s", table)
	}
	return int64(len(rows)), nil
}

// ListIsochrones returns the stored isochrones of a run ordered by POI and
// budget.
func (s *SQLiteStore) ListIsochrones(ctx context.Context, runID string) ([]model.Isochrone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT poi_id, category, budget_minutes, max_distance, reachable_nodes, geom_wkb
		 FROM isochrones WHERE run_id = ? ORDER BY poi_id, budget_minutes`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list isochrones %s", runID)
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
			return nil, eris.Wrap(err, "sqlite: scan isochrone")
		}
		iso.Category = model.Category(category)
		if iso.Polygon, err = decodePolygon(wkb); err != nil {
			return nil, eris.Wrapf(err, "sqlite: isochrone %s/%g", iso.POIID, iso.BudgetMinutes)
		}
		isos = append(isos, iso)
	}
	return isos, eris.Wrap(rows.Err(), "sqlite: list isochrones iterate")
}

func (s *SQLiteStore) ListCells(ctx context.Context, runID string, highOnly bool) ([]model.OpportunityCell, error) {
	query := `SELECT grid_id, x, y, poi_count, hotspot_value, potential, high_potential FROM opportunity_cells WHERE run_id = ?`
	if highOnly {
		query += ` AND high_potential = 1`
	}
	query += ` ORDER BY CAST(substr(grid_id, 6) AS INTEGER), grid_id`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list cells %s", runID)
	}
	defer rows.Close()

	var cells []model.OpportunityCell
	for rows.Next() {
		var c model.OpportunityCell
		if err := rows.Scan(&c.ID, &c.X, &c.Y, &c.POICount, &c.HotspotValue, &c.Potential, &c.HighPotential); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "sqlite: list cells iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var params string
	var summary, runErr *string

	if err := row.Scan(&r.ID, &r.City, &r.Status, &params, &summary, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	var summaryBytes *[]byte
	if summary != nil {
		b := []byte(*summary)
		summaryBytes = &b
	}
	if err := decodeRun(&r, []byte(params), summaryBytes, runErr); err != nil {
		return nil, err
	}
	return &r, nil
}
