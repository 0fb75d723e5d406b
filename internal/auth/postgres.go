package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
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

func (s *PGStore) Users(context.Context) UserStore                 { return &pgUserStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore { return &pgTokenStore{db: s.db} }

// User store ---------------------------------------------------------------

type pgUserStore struct{ db *sql.DB }

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	// Emails are stored canonicalized so lookups match regardless of the
	// casing the account was provisioned with.
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	roles, _ := json.Marshal(u.Roles)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, username, password_hash, roles) values($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.Username, u.PasswordHash, roles,
	)
	return err
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, username, password_hash, roles, created_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, username, password_hash, roles, created_at from users where email=$1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u     User
		roles []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roles, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(roles, &u.Roles)
	return &u, nil
}

// Refresh token store ------------------------------------------------------

type pgTokenStore struct{ db *sql.DB }

func (s *pgTokenStore) Insert(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_refresh_tokens(token, user_id, created_at, created_by_ip, expires_at)
		 values($1,$2,$3,$4,$5)`,
		tok.Token, tok.UserID, tok.CreatedAt, tok.CreatedByIP, tok.ExpiresAt,
	)
	return err
}

func (s *pgTokenStore) GetByToken(ctx context.Context, token string) (*RefreshToken, *User, error) {
	row := s.db.QueryRowContext(ctx,
		`select t.token, t.user_id, t.created_at, t.created_by_ip, t.expires_at,
		        t.revoked_at, t.revoked_by_ip, t.replaced_by_token,
		        u.id, u.email, u.username, u.password_hash, u.roles, u.created_at
		 from user_refresh_tokens t
		 join users u on u.id = t.user_id
		 where t.token=$1`, token)

	var (
		tok       RefreshToken
		u         User
		revokedBy sql.NullString
		replaced  sql.NullString
		revokedAt sql.NullTime
		roles     []byte
	)
	err := row.Scan(
		&tok.Token, &tok.UserID, &tok.CreatedAt, &tok.CreatedByIP, &tok.ExpiresAt,
		&revokedAt, &revokedBy, &replaced,
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roles, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		tok.RevokedAt = &t
	}
	tok.RevokedByIP = revokedBy.String
	tok.ReplacedByToken = replaced.String
	_ = json.Unmarshal(roles, &u.Roles)
	return &tok, &u, nil
}

func (s *pgTokenStore) GetActiveForUser(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`select token, user_id, created_at, created_by_ip, expires_at
		 from user_refresh_tokens
		 where user_id=$1 and revoked_at is null and expires_at > $2
		 order by created_at`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RefreshToken
	for rows.Next() {
		var tok RefreshToken
		if err := rows.Scan(&tok.Token, &tok.UserID, &tok.CreatedAt, &tok.CreatedByIP, &tok.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &tok)
	}
	return out, rows.Err()
}

// Rotate commits the old token's revocation and the replacement's insertion
// together. The conditional update collapses concurrent rotations of the
// same token into a single winner.
func (s *pgTokenStore) Rotate(ctx context.Context, old *RefreshToken, next *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`update user_refresh_tokens
		 set revoked_at=$1, revoked_by_ip=$2, replaced_by_token=$3
		 where token=$4 and revoked_at is null`,
		old.RevokedAt, old.RevokedByIP, old.ReplacedByToken, old.Token,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenRotated
	}

	_, err = tx.ExecContext(ctx,
		`insert into user_refresh_tokens(token, user_id, created_at, created_by_ip, expires_at)
		 values($1,$2,$3,$4,$5)`,
		next.Token, next.UserID, next.CreatedAt, next.CreatedByIP, next.ExpiresAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgTokenStore) Revoke(ctx context.Context, token, ip string, at time.Time) error {
	// Zero rows affected means the token was absent or already inactive;
	// logout is idempotent so that is not an error.
	_, err := s.db.ExecContext(ctx,
		`update user_refresh_tokens
		 set revoked_at=$1, revoked_by_ip=$2
		 where token=$3 and revoked_at is null and expires_at > $1`,
		at, ip, token,
	)
	return err
}

func (s *pgTokenStore) RevokeAllForUser(ctx context.Context, userID, ip string, at time.Time) error {
	// Single statement keeps the family revocation atomic.
	_, err := s.db.ExecContext(ctx,
		`update user_refresh_tokens
		 set revoked_at=$1, revoked_by_ip=$2
		 where user_id=$3 and revoked_at is null and expires_at > $1`,
		at, ip, userID,
	)
	return err
}
