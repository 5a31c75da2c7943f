package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/koltyakov/servgate/internal/domain"
)

// InsertToken persists a verified bearer token bound to ip.
func (s *Store) InsertToken(ctx context.Context, token, ip string) (domain.Token, error) {
	rec := domain.Token{Token: token, IP: ip, CreatedAt: time.Now().UTC(), Authorized: true}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tokens(token, ip, created_at, authorized)
VALUES(?, ?, ?, ?)`, rec.Token, rec.IP, rec.CreatedAt, boolToInt(rec.Authorized))
	if err != nil {
		return domain.Token{}, err
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return domain.Token{}, err
	}
	return rec, nil
}

// GetToken looks up a persisted token.
func (s *Store) GetToken(ctx context.Context, token string) (domain.Token, error) {
	var row *sql.Row
	if s.getTokenStmt != nil {
		row = s.getTokenStmt.QueryRowContext(ctx, token)
	} else {
		row = s.db.QueryRowContext(ctx, getTokenQuery, token)
	}
	rec, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Token{}, domain.ErrTokenNotFound
	}
	return rec, err
}

// DeleteToken revokes a persisted token and reports whether it existed.
func (s *Store) DeleteToken(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, token)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListTokens returns every persisted token, newest first.
func (s *Store) ListTokens(ctx context.Context) ([]domain.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, token, ip, created_at, authorized
FROM tokens
ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Token
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (domain.Token, error) {
	var rec domain.Token
	var authorized int
	if err := row.Scan(&rec.ID, &rec.Token, &rec.IP, &rec.CreatedAt, &authorized); err != nil {
		return domain.Token{}, err
	}
	rec.Authorized = authorized != 0
	return rec, nil
}
