package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"secretsanta/internal/domain"
)

// Repo stores run history.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const runColumns = `id,created_at,COALESCE(participants_source,''),COALESCE(prior_source,''),COALESCE(output_path,''),attempts,repair,participant_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var run domain.Run
	err := row.Scan(&run.ID, &run.CreatedAt, &run.ParticipantsSource, &run.PriorSource, &run.OutputPath,
		&run.Attempts, &run.Repair, &run.ParticipantCount)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	return run, err
}

// InsertRunTx records a run and its assignments in position order.
func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run, assignments []domain.Assignment) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id,created_at,participants_source,prior_source,output_path,attempts,repair,participant_count) VALUES (?,?,?,?,?,?,?,?)`,
		run.ID, run.CreatedAt, nullable(run.ParticipantsSource), nullable(run.PriorSource), nullable(run.OutputPath),
		run.Attempts, run.Repair, run.ParticipantCount); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_assignments(run_id,position,giver_name,giver_email,recipient_name,recipient_email) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, a := range assignments {
		if _, err := stmt.ExecContext(ctx, run.ID, i, a.GiverName, a.GiverEmail, a.RecipientName, a.RecipientEmail); err != nil {
			return fmt.Errorf("insert assignment %d: %w", i, err)
		}
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

// LatestRun returns the most recently created run.
func (r Repo) LatestRun(ctx context.Context) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`))
}

// ListRuns returns runs newest first. limit <= 0 means no limit.
func (r Repo) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r Repo) RunAssignments(ctx context.Context, runID string) ([]domain.Assignment, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT giver_name,giver_email,recipient_name,recipient_email FROM run_assignments WHERE run_id=? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.GiverName, &a.GiverEmail, &a.RecipientName, &a.RecipientEmail); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestAssignments returns the newest run's assignments as prior records,
// along with that run's id. ErrNotFound means there is no history yet.
func (r Repo) LatestAssignments(ctx context.Context) ([]domain.PriorAssignment, string, error) {
	run, err := r.LatestRun(ctx)
	if err != nil {
		return nil, "", err
	}
	assignments, err := r.RunAssignments(ctx, run.ID)
	if err != nil {
		return nil, "", err
	}
	priors := make([]domain.PriorAssignment, 0, len(assignments))
	for _, a := range assignments {
		priors = append(priors, a.Prior())
	}
	return priors, run.ID, nil
}

// LatestEvents returns up to limit events newest first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, runID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if runID != "" {
		clauses = append(clauses, "run_id=?")
		args = append(args, runID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(run_id,''),payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RunID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
