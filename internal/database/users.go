package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID                  pgtype.UUID
	Username            string
	Password            string
	Role                string
	IsApproved          bool
	UploadCapacityBytes int64
	CreatedAt           time.Time
}

const userCols = `id, username, password, role, is_approved, upload_capacity_bytes, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.IsApproved, &u.UploadCapacityBytes, &u.CreatedAt)
	return u, err
}

type CreateUserParams struct {
	Username            string
	Password            string
	Role                string
	IsApproved          bool
	UploadCapacityBytes int64
}

func (s *Store) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password, role, is_approved, upload_capacity_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userCols,
		arg.Username, arg.Password, arg.Role, arg.IsApproved, arg.UploadCapacityBytes))
}

func (s *Store) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (s *Store) GetUserCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) ListPendingUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userCols+` FROM users WHERE NOT is_approved ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) ApproveUser(ctx context.Context, id pgtype.UUID) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET is_approved = TRUE WHERE id = $1
		RETURNING `+userCols, id))
}

func (s *Store) DeleteUser(ctx context.Context, id pgtype.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (s *Store) UpdateUserCapacity(ctx context.Context, id pgtype.UUID, capacityBytes int64) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET upload_capacity_bytes = $2 WHERE id = $1
		RETURNING `+userCols, id, capacityBytes))
}
