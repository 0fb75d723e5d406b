package incident

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/carsonmellblom/IncidentCommander/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Current(ctx context.Context) (*Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, status, created_at, resolved_at, resolved_by from incidents
		 where resolved_at is null order by created_at desc limit 1`)
	return scanIncident(row)
}

func (s *PGStore) Create(ctx context.Context, inc *Incident) error {
	if inc.ID == "" {
		inc.ID = ids.New()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into incidents(id, status, created_at) values($1,$2,$3)`,
		inc.ID, inc.Status, inc.CreatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, status, created_at, resolved_at, resolved_by from incidents where id=$1`, id)
	return scanIncident(row)
}

func (s *PGStore) Resolve(ctx context.Context, id, by string, at time.Time) (*Incident, error) {
	res, err := s.db.ExecContext(ctx,
		`update incidents set resolved_at=$1, resolved_by=$2 where id=$3`, at, by, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *PGStore) Logs(ctx context.Context, incidentID string) ([]*Log, error) {
	if _, err := s.Find(ctx, incidentID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, incident_id, ts, level, message from incident_logs
		 where incident_id=$1 order by ts desc`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		var entry Log
		if err := rows.Scan(&entry.ID, &entry.IncidentID, &entry.Timestamp, &entry.Level, &entry.Message); err != nil {
			return nil, err
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func (s *PGStore) AddLog(ctx context.Context, entry *Log) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into incident_logs(id, incident_id, ts, level, message)
		 select $1, id, $3, $4, $5 from incidents where id=$2`,
		entry.ID, entry.IncidentID, entry.Timestamp, entry.Level, entry.Message,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIncident(row *sql.Row) (*Incident, error) {
	var (
		inc        Incident
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	if err := row.Scan(&inc.ID, &inc.Status, &inc.CreatedAt, &resolvedAt, &resolvedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}
	inc.ResolvedBy = resolvedBy.String
	return &inc, nil
}
