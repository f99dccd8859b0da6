package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ridgeline-data/segment.report/internal/fault"
)

// Project status values. A planning run may only start from created,
// completed, failed or cancelled; processing is exclusive.
const (
	StatusCreated    = "created"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelling = "cancelling"
	StatusCancelled  = "cancelled"
)

// Project is the stored record for one planning job.
type Project struct {
	ID               string
	Name             string
	Config           string // raw configuration JSON as accepted
	Status           string
	EPSG             int
	CellSizeM        float64
	CoverageFraction float64
	Counters         string // diagnostics JSON, empty until a run completes
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateProject stores a new project with its validated configuration JSON.
func (db *DB) CreateProject(name string, configJSON []byte) (*Project, error) {
	p := &Project{
		ID:     uuid.New().String(),
		Name:   name,
		Config: string(configJSON),
		Status: StatusCreated,
	}
	_, err := db.Exec(
		`INSERT INTO projects (id, name, config, status) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Config, p.Status,
	)
	if err != nil {
		return nil, fault.New(fault.Internal, "create project: %v", err)
	}
	return db.GetProject(p.ID)
}

// GetProject loads one project by id.
func (db *DB) GetProject(id string) (*Project, error) {
	row := db.QueryRow(
		`SELECT id, name, config, status,
		        COALESCE(epsg, 0), COALESCE(cell_size_m, 0), COALESCE(coverage_fraction, 0),
		        COALESCE(counters, ''), COALESCE(error_message, ''),
		        created_at, updated_at
		 FROM projects WHERE id = ?`, id)
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Config, &p.Status,
		&p.EPSG, &p.CellSizeM, &p.CoverageFraction,
		&p.Counters, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.Data, "project %s not found", id)
	}
	if err != nil {
		return nil, fault.New(fault.Internal, "get project: %v", err)
	}
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (db *DB) ListProjects() ([]Project, error) {
	rows, err := db.Query(
		`SELECT id, name, config, status,
		        COALESCE(epsg, 0), COALESCE(cell_size_m, 0), COALESCE(coverage_fraction, 0),
		        COALESCE(counters, ''), COALESCE(error_message, ''),
		        created_at, updated_at
		 FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fault.New(fault.Internal, "list projects: %v", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Config, &p.Status,
			&p.EPSG, &p.CellSizeM, &p.CoverageFraction,
			&p.Counters, &p.ErrorMessage,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fault.New(fault.Internal, "scan project: %v", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project; its segments cascade away.
func (db *DB) DeleteProject(id string) error {
	res, err := db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fault.New(fault.Internal, "delete project: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.Data, "project %s not found", id)
	}
	return nil
}

// TransitionStatus moves a project from one status to another atomically.
// A mismatch on the expected current status is a conflict, which is how the
// single-active-run rule is enforced.
func (db *DB) TransitionStatus(id, from, to string) error {
	res, err := db.Exec(
		`UPDATE projects SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fault.New(fault.Internal, "transition status: %v", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p, err := db.GetProject(id)
		if err != nil {
			return err
		}
		return fault.New(fault.Conflict, "project %s is %s, expected %s", id, p.Status, from)
	}
	return nil
}

// RequestCancel flips a processing project to cancelling. The pipeline sees
// the cancellation at its next suspension point.
func (db *DB) RequestCancel(id string) error {
	return db.TransitionStatus(id, StatusProcessing, StatusCancelling)
}

// SetFailure records the error message and moves the project to failed.
func (db *DB) SetFailure(id, message string) error {
	_, err := db.Exec(
		`UPDATE projects SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, StatusFailed, message, id)
	if err != nil {
		return fault.New(fault.Internal, "record failure: %v", err)
	}
	return nil
}
