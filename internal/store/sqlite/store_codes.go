package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/koltyakov/servgate/internal/domain"
)

// InsertCode persists a code→port mapping. Uniqueness is not enforced.
func (s *Store) InsertCode(ctx context.Context, code, port string) (domain.Code, error) {
	rec := domain.Code{Code: code, Port: port, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx, `INSERT INTO codes(code, port, created_at) VALUES(?, ?, ?)`, rec.Code, rec.Port, rec.CreatedAt)
	if err != nil {
		return domain.Code{}, err
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return domain.Code{}, err
	}
	return rec, nil
}

// GetTarget resolves a code to its most recently stored target.
func (s *Store) GetTarget(ctx context.Context, code string) (domain.Target, error) {
	var port string
	var err error
	if s.getTargetStmt != nil {
		err = s.getTargetStmt.QueryRowContext(ctx, code).Scan(&port)
	} else {
		err = s.db.QueryRowContext(ctx, getTargetQuery, code).Scan(&port)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Target{}, domain.ErrCodeNotFound
	}
	if err != nil {
		return domain.Target{}, err
	}
	return domain.Target{Port: port}, nil
}

// DeleteCode removes every row for code and reports whether any existed.
func (s *Store) DeleteCode(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM codes WHERE code = ?`, code)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListCodes returns every stored code in insertion order.
func (s *Store) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM codes ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}
