package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"uptime/app/internal/models"
)

// CreateValidator registers a new validator
func (s *Store) CreateValidator(ctx context.Context, v *models.Validator) error {
	_, err := s.exec(ctx, s.DB, `INSERT INTO validators (id, public_key, location, ip, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.PublicKey, v.Location, v.IP, toMillis(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert validator %s: %w", v.ID, err)
	}
	return nil
}

// UpsertValidator inserts or refreshes a validator by id
func (s *Store) UpsertValidator(ctx context.Context, v *models.Validator) error {
	_, err := s.exec(ctx, s.DB, `INSERT INTO validators (id, public_key, location, ip, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			public_key = excluded.public_key,
			location = excluded.location,
			ip = excluded.ip`,
		v.ID, v.PublicKey, v.Location, v.IP, toMillis(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert validator %s: %w", v.ID, err)
	}
	return nil
}

// GetValidator returns a validator by id, or models.ErrNotFound
func (s *Store) GetValidator(ctx context.Context, id string) (*models.Validator, error) {
	var (
		v       models.Validator
		created int64
	)
	err := s.queryRow(ctx, s.DB, `SELECT id, public_key, location, ip, created_at FROM validators WHERE id = ?`, id).
		Scan(&v.ID, &v.PublicKey, &v.Location, &v.IP, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("validator %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get validator %s: %w", id, err)
	}
	v.CreatedAt = fromMillis(created)
	return &v, nil
}

// ListValidators returns all validators, optionally only those at location
func (s *Store) ListValidators(ctx context.Context, location string) ([]models.Validator, error) {
	query := `SELECT id, public_key, location, ip, created_at FROM validators`
	var args []any
	if location != "" {
		query += " WHERE location = ?"
		args = append(args, location)
	}
	query += " ORDER BY id ASC"

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list validators: %w", err)
	}
	defer rows.Close()

	var out []models.Validator
	for rows.Next() {
		var (
			v       models.Validator
			created int64
		)
		if err := rows.Scan(&v.ID, &v.PublicKey, &v.Location, &v.IP, &created); err != nil {
			return nil, err
		}
		v.CreatedAt = fromMillis(created)
		out = append(out, v)
	}
	return out, rows.Err()
}
