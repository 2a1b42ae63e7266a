package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memo/internal/config"
	"memo/internal/logger"
	"memo/internal/models/task"
	repo "memo/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const slowQuery = 100 * time.Millisecond

const taskColumns = `id, user_id, title, description, due_at, priority, category,
	tags, completed, attachments, created_at, updated_at, version`

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*Storage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.MinConnections)
	}
	if cfg.IdleTimeout > 0 {
		poolConfig.MaxConnIdleTime = cfg.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

// Pool отдаёт пул соседним хранилищам (пользователи живут в той же базе).
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()
	defer warnIfSlow("Create", start)

	if taskToCreate.ID == "" {
		taskToCreate.ID = uuid.NewString()
	}
	taskToCreate.Tags = task.NormalizeTags(taskToCreate.Tags)

	query := `INSERT INTO tasks
				(id, user_id, title, description, due_at, priority, category, tags, completed, attachments, created_at, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), 1)
				RETURNING created_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToCreate.ID,
		taskToCreate.UserID,
		taskToCreate.Title,
		taskToCreate.Description,
		taskToCreate.DueAt,
		taskToCreate.Priority,
		taskToCreate.Category,
		taskToCreate.Tags,
		taskToCreate.Completed,
		attachmentsOf(taskToCreate),
	).Scan(&taskToCreate.CreatedAt, &taskToCreate.Version)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}

	taskToCreate.UpdatedAt = nil
	return nil
}

func (s *Storage) GetByID(ctx context.Context, userID, id string) (*task.Task, error) {
	start := time.Now()
	defer warnIfSlow("GetByID", start)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

// Update применяется только к актуальной версии задачи
func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()
	defer warnIfSlow("Update", start)

	taskToUpdate.Tags = task.NormalizeTags(taskToUpdate.Tags)

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				due_at = $3,
				priority = $4,
				category = $5,
				tags = $6,
				completed = $7,
				attachments = $8,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $9 AND user_id = $10 AND version = $11
			RETURNING created_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		taskToUpdate.DueAt,
		taskToUpdate.Priority,
		taskToUpdate.Category,
		taskToUpdate.Tags,
		taskToUpdate.Completed,
		attachmentsOf(taskToUpdate),
		taskToUpdate.ID,
		taskToUpdate.UserID,
		taskToUpdate.Version,
	).Scan(&taskToUpdate.CreatedAt, &taskToUpdate.UpdatedAt, &taskToUpdate.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// строки нет вовсе или версия устарела
			if _, getErr := s.GetByID(ctx, taskToUpdate.UserID, taskToUpdate.ID); errors.Is(getErr, repo.ErrNotFound) {
				return repo.ErrNotFound
			}
			logger.Warn("Repository: Конфликт версий при обновлении задачи",
				zap.String("task_id", taskToUpdate.ID),
				zap.Int("expected_version", taskToUpdate.Version))
			return repo.ErrVersionConflict
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", err)
	}
	return nil
}

// SetCompleted меняет одно поле без проверки версии
func (s *Storage) SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error) {
	start := time.Now()
	defer warnIfSlow("SetCompleted", start)

	query := `UPDATE tasks
			SET completed = $1,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $2 AND user_id = $3
			RETURNING ` + taskColumns

	t, err := scanTask(s.pool.QueryRow(ctx, query, completed, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось изменить статус задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("изменение статуса задачи: %w", err)
	}
	return t, nil
}

func (s *Storage) Delete(ctx context.Context, userID, id string) error {
	start := time.Now()
	defer warnIfSlow("Delete", start)

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		logger.Error("Repository: Не удалось удалить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("удаление задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// List отдаёт задачи пользователя, новые первыми
func (s *Storage) List(ctx context.Context, userID string, filter task.Filter) ([]*task.Task, error) {
	start := time.Now()
	defer warnIfSlow("List", start)

	where := []string{"user_id = $1"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.Tag != "" {
		where = append(where, arg(filter.Tag)+" = ANY(tags)")
	}
	if filter.Completed != nil {
		where = append(where, "completed = "+arg(*filter.Completed))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf(
			"(title ILIKE %[1]s OR description ILIKE %[1]s OR array_to_string(tags, ' ') ILIKE %[1]s)", p))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit) + " OFFSET " + arg(filter.Offset())
	}

	return s.queryTasks(ctx, query, args...)
}

// ListDueBetween ищет по всем пользователям незавершённые задачи со сроком в [from, to],
// ближайшие сроки первыми, чтобы LIMIT отсекал самые дальние
func (s *Storage) ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]*task.Task, error) {
	start := time.Now()
	defer warnIfSlow("ListDueBetween", start)

	query := `SELECT ` + taskColumns + ` FROM tasks
			WHERE completed = FALSE
				AND due_at IS NOT NULL
				AND due_at BETWEEN $1 AND $2
			ORDER BY due_at ASC
			LIMIT $3`

	if limit <= 0 {
		limit = 1000
	}
	return s.queryTasks(ctx, query, from, to, limit)
}

func (s *Storage) ListCategories(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT category FROM tasks
			WHERE user_id = $1 AND category <> ''
			ORDER BY category`, userID)
}

func (s *Storage) ListTags(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT tag FROM tasks, unnest(tags) AS tag
			WHERE user_id = $1
			ORDER BY tag`, userID)
}

func (s *Storage) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования задачи", err)
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return tasks, nil
}

func (s *Storage) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить значения", err)
		return nil, fmt.Errorf("получение значений: %w", err)
	}

	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func scanTask(row pgx.Row) (*task.Task, error) {
	t := &task.Task{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.DueAt,
		&t.Priority,
		&t.Category,
		&t.Tags,
		&t.Completed,
		&t.Attachments,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if len(t.Attachments) == 0 {
		t.Attachments = nil
	}
	return t, nil
}

func attachmentsOf(t *task.Task) map[string]task.Attachment {
	if t.Attachments == nil {
		return map[string]task.Attachment{}
	}
	return t.Attachments
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func warnIfSlow(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленная операция", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
