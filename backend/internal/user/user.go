package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

type Repository interface {
	CreateUser(ctx context.Context, name, email string, passwordHash []byte) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            VARCHAR(64)  NOT NULL PRIMARY KEY,
	name          VARCHAR(128) NOT NULL,
	email         VARCHAR(255) NOT NULL UNIQUE,
	password_hash VARBINARY(72) NOT NULL,
	created_at    TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

type mysqlRepository struct {
	db *sql.DB
}

func NewMySQLRepository(db *sql.DB) Repository {
	return &mysqlRepository{db: db}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 3*time.Second)
}

func (r *mysqlRepository) CreateUser(ctx context.Context, name, email string, passwordHash []byte) (*User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	u := &User{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: passwordHash}
	const q = `INSERT INTO users (id, name, email, password_hash) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash); err != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil, ErrEmailTaken
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrDeadlineExceeded
		}
		return nil, err
	}
	return u, nil
}

func (r *mysqlRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE email = ?`, email)
}

func (r *mysqlRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, `SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE id = ?`, id)
}

func (r *mysqlRepository) getOne(ctx context.Context, q string, arg string) (*User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var u User
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
