package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memo/internal/logger"
	"memo/internal/models/user"
	repo "memo/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const userColumns = `id, display_name, email, photo_url, provider, telegram_chat_id, password_hash, created_at`

type Storage struct {
	pool *pgxpool.Pool
}

// New использует общий пул с хранилищем задач.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func (s *Storage) Create(ctx context.Context, u *user.User) error {
	start := time.Now()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	query := `INSERT INTO users (id, display_name, email, photo_url, provider, telegram_chat_id, password_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		u.ID, u.DisplayName, u.Email, u.PhotoURL, u.Provider, u.TelegramChatID, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось создать пользователя", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("создание пользователя: %w", err)
	}
	return nil
}

func (s *Storage) GetByID(ctx context.Context, id string) (*user.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Storage) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if email == "" {
		return nil, repo.ErrNotFound
	}
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *Storage) SetTelegramChatID(ctx context.Context, id string, chatID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET telegram_chat_id = $1 WHERE id = $2`, chatID, id)
	if err != nil {
		logger.Error("Repository: Не удалось привязать Telegram", err, zap.String("user_id", id))
		return fmt.Errorf("привязка telegram: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) getOne(ctx context.Context, query string, arg string) (*user.User, error) {
	start := time.Now()

	u := &user.User{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.DisplayName,
		&u.Email,
		&u.PhotoURL,
		&u.Provider,
		&u.TelegramChatID,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить пользователя", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	if time.Since(start) > 100*time.Millisecond {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return u, nil
}
