package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"memo/internal/config"
	"memo/internal/migrations"
	"memo/internal/models/task"
	"memo/internal/models/user"
	repo "memo/internal/repository"
	"memo/internal/repository/task/postgres"
	userpg "memo/internal/repository/user/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresTestSuite для интеграционных тестов с PostgreSQL
type PostgresTestSuite struct {
	suite.Suite
	container  testcontainers.Container
	storage    *postgres.Storage
	users      *userpg.Storage
	connString string
	ctx        context.Context
}

// SetupSuite запускается один раз перед всеми тестами
func (s *PostgresTestSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(s.ctx)
	require.NoError(s.T(), err)

	port, err := container.MappedPort(s.ctx, "5432")
	require.NoError(s.T(), err)

	s.connString = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	// порт открывается раньше, чем база принимает запросы
	require.Eventually(s.T(), func() bool {
		return migrations.Up(s.connString) == nil
	}, 30*time.Second, 500*time.Millisecond)

	s.storage, err = postgres.New(s.ctx, config.DatabaseConfig{URL: s.connString, MaxConnections: 5})
	require.NoError(s.T(), err)
	s.users = userpg.New(s.storage.Pool())
}

// TearDownSuite очищает после всех тестов
func (s *PostgresTestSuite) TearDownSuite() {
	if s.storage != nil {
		s.storage.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

// SetupTest запускается перед каждым тестом
func (s *PostgresTestSuite) SetupTest() {
	conn, err := pgx.Connect(s.ctx, s.connString)
	require.NoError(s.T(), err)
	defer conn.Close(s.ctx)

	_, err = conn.Exec(s.ctx, "TRUNCATE tasks, users")
	require.NoError(s.T(), err)

	for _, id := range []string{"user-1", "user-2"} {
		require.NoError(s.T(), s.users.Create(s.ctx, &user.User{
			ID:          id,
			DisplayName: id,
			Email:       id + "@example.com",
			Provider:    user.ProviderPassword,
		}))
	}
}

// TestPostgresTestSuite запускает suite
func TestPostgresTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционные тесты в коротком режиме")
	}
	suite.Run(t, new(PostgresTestSuite))
}

func at(d time.Duration) *time.Time {
	t := time.Now().Add(d).UTC().Truncate(time.Microsecond)
	return &t
}

func (s *PostgresTestSuite) newTask(userID, title string, due *time.Time) *task.Task {
	tk := &task.Task{
		UserID:   userID,
		Title:    title,
		DueAt:    due,
		Priority: task.PriorityHigh,
		Tags:     []string{"work", "urgent", "work"},
		Attachments: map[string]task.Attachment{
			"a1": {ID: "a1", Name: "doc.txt", Path: "users/u/doc.txt", Size: 3},
		},
	}
	require.NoError(s.T(), s.storage.Create(s.ctx, tk))
	return tk
}

// TestStorage_Create тестирует создание задачи
func (s *PostgresTestSuite) TestStorage_Create() {
	due := at(time.Hour)
	created := s.newTask("user-1", "Test Task", due)

	assert.NotEmpty(s.T(), created.ID)
	assert.False(s.T(), created.CreatedAt.IsZero())
	assert.Equal(s.T(), 1, created.Version)

	retrieved, err := s.storage.GetByID(s.ctx, "user-1", created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Test Task", retrieved.Title)
	assert.Equal(s.T(), task.PriorityHigh, retrieved.Priority)
	assert.Equal(s.T(), []string{"urgent", "work"}, retrieved.Tags)
	assert.True(s.T(), due.Equal(*retrieved.DueAt))
	assert.Equal(s.T(), "doc.txt", retrieved.Attachments["a1"].Name)
	assert.Nil(s.T(), retrieved.UpdatedAt)

	dup := &task.Task{ID: created.ID, UserID: "user-1", Title: "dup"}
	assert.ErrorIs(s.T(), s.storage.Create(s.ctx, dup), repo.ErrAlreadyExists)
}

// TestStorage_GetByID тестирует получение задачи по ID
func (s *PostgresTestSuite) TestStorage_GetByID() {
	created := s.newTask("user-1", "Test Get Task", nil)

	retrieved, err := s.storage.GetByID(s.ctx, "user-1", created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), created.ID, retrieved.ID)
	assert.Nil(s.T(), retrieved.DueAt)

	_, err = s.storage.GetByID(s.ctx, "user-2", created.ID)
	assert.ErrorIs(s.T(), err, repo.ErrNotFound)

	_, err = s.storage.GetByID(s.ctx, "user-1", "missing")
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "не найдена")
}

// TestStorage_Update тестирует обновление задачи
func (s *PostgresTestSuite) TestStorage_Update() {
	created := s.newTask("user-1", "Original Title", at(time.Hour))

	created.Title = "Updated Title"
	created.Description = "Updated Description"
	created.DueAt = nil
	created.Attachments = nil

	require.NoError(s.T(), s.storage.Update(s.ctx, created))
	assert.Equal(s.T(), 2, created.Version)

	retrieved, err := s.storage.GetByID(s.ctx, "user-1", created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Updated Title", retrieved.Title)
	assert.Equal(s.T(), "Updated Description", retrieved.Description)
	assert.Nil(s.T(), retrieved.DueAt)
	assert.Empty(s.T(), retrieved.Attachments)
	assert.NotNil(s.T(), retrieved.UpdatedAt)
	assert.Equal(s.T(), 2, retrieved.Version)
}

// TestStorage_Update_VersionConflict тестирует конфликт версий
func (s *PostgresTestSuite) TestStorage_Update_VersionConflict() {
	created := s.newTask("user-1", "Test Task", nil)

	task1, err := s.storage.GetByID(s.ctx, "user-1", created.ID)
	require.NoError(s.T(), err)
	task2, err := s.storage.GetByID(s.ctx, "user-1", created.ID)
	require.NoError(s.T(), err)

	task1.Title = "Updated by task1"
	require.NoError(s.T(), s.storage.Update(s.ctx, task1))

	task2.Title = "Updated by task2"
	err = s.storage.Update(s.ctx, task2)
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "конфликт версий")

	missing := &task.Task{ID: "missing", UserID: "user-1", Title: "x", Version: 1}
	assert.ErrorIs(s.T(), s.storage.Update(s.ctx, missing), repo.ErrNotFound)
}

// TestStorage_SetCompleted тестирует изменение флага завершения
func (s *PostgresTestSuite) TestStorage_SetCompleted() {
	created := s.newTask("user-1", "Finish me", at(10*time.Minute))

	updated, err := s.storage.SetCompleted(s.ctx, "user-1", created.ID, true)
	require.NoError(s.T(), err)
	assert.True(s.T(), updated.Completed)
	assert.Equal(s.T(), 2, updated.Version)

	_, err = s.storage.SetCompleted(s.ctx, "user-2", created.ID, true)
	assert.ErrorIs(s.T(), err, repo.ErrNotFound)
}

// TestStorage_Delete тестирует удаление
func (s *PostgresTestSuite) TestStorage_Delete() {
	created := s.newTask("user-1", "Task to delete", nil)

	assert.ErrorIs(s.T(), s.storage.Delete(s.ctx, "user-2", created.ID), repo.ErrNotFound)
	require.NoError(s.T(), s.storage.Delete(s.ctx, "user-1", created.ID))

	_, err := s.storage.GetByID(s.ctx, "user-1", created.ID)
	assert.ErrorIs(s.T(), err, repo.ErrNotFound)
}

// TestStorage_List тестирует фильтры и пагинацию
func (s *PostgresTestSuite) TestStorage_List() {
	for i := 1; i <= 5; i++ {
		tk := &task.Task{UserID: "user-1", Title: fmt.Sprintf("Task %d", i)}
		if i%2 == 0 {
			tk.Category = "home"
			tk.Tags = []string{"shop"}
		}
		require.NoError(s.T(), s.storage.Create(s.ctx, tk))
	}
	s.newTask("user-2", "Foreign", nil)

	all, err := s.storage.List(s.ctx, "user-1", task.Filter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 5)

	home, err := s.storage.List(s.ctx, "user-1", task.Filter{Category: "home"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), home, 2)

	tagged, err := s.storage.List(s.ctx, "user-1", task.Filter{Tag: "shop"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), tagged, 2)

	notDone := false
	open, err := s.storage.List(s.ctx, "user-1", task.Filter{Completed: &notDone})
	require.NoError(s.T(), err)
	assert.Len(s.T(), open, 5)

	page, err := s.storage.List(s.ctx, "user-1", task.Filter{Page: 2, Limit: 2})
	require.NoError(s.T(), err)
	assert.Len(s.T(), page, 2)

	found, err := s.storage.List(s.ctx, "user-1", task.Filter{Query: "task 3"})
	require.NoError(s.T(), err)
	require.Len(s.T(), found, 1)
	assert.Equal(s.T(), "Task 3", found[0].Title)

	percent, err := s.storage.List(s.ctx, "user-1", task.Filter{Query: "%"})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), percent)
}

// TestStorage_ListDueBetween проверяет выборку для напоминаний
func (s *PostgresTestSuite) TestStorage_ListDueBetween() {
	now := time.Now().UTC()

	s.newTask("user-1", "Soon", at(10*time.Minute))
	s.newTask("user-2", "Later", at(25*time.Minute))
	s.newTask("user-1", "Too late", at(2*time.Hour))
	s.newTask("user-1", "Past", at(-time.Minute))
	s.newTask("user-1", "No due", nil)
	done := s.newTask("user-1", "Done", at(5*time.Minute))
	_, err := s.storage.SetCompleted(s.ctx, "user-1", done.ID, true)
	require.NoError(s.T(), err)

	tasks, err := s.storage.ListDueBetween(s.ctx, now, now.Add(30*time.Minute), 100)
	require.NoError(s.T(), err)
	require.Len(s.T(), tasks, 2)
	assert.Equal(s.T(), "Soon", tasks[0].Title)
	assert.Equal(s.T(), "Later", tasks[1].Title)

	limited, err := s.storage.ListDueBetween(s.ctx, now, now.Add(30*time.Minute), 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), limited, 1)
	assert.Equal(s.T(), "Soon", limited[0].Title)
}

// TestStorage_ListDueBetween_ScanError битая строка проваливает выборку целиком
func (s *PostgresTestSuite) TestStorage_ListDueBetween_ScanError() {
	now := time.Now().UTC()
	s.newTask("user-1", "Soon", at(10*time.Minute))

	_, err := s.storage.Pool().Exec(s.ctx, `INSERT INTO tasks (id, user_id, title, due_at, attachments)
			VALUES ('broken', 'user-1', 'Broken', $1, '[]'::jsonb)`, *at(5 * time.Minute))
	require.NoError(s.T(), err)

	_, err = s.storage.ListDueBetween(s.ctx, now, now.Add(30*time.Minute), 100)
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "сканирование задачи")
}

func (s *PostgresTestSuite) TestStorage_CategoriesAndTags() {
	a := &task.Task{UserID: "user-1", Title: "A", Category: "work", Tags: []string{"urgent"}}
	b := &task.Task{UserID: "user-1", Title: "B", Category: "home", Tags: []string{"urgent", "shop"}}
	c := &task.Task{UserID: "user-2", Title: "C", Category: "other", Tags: []string{"foreign"}}
	for _, tk := range []*task.Task{a, b, c} {
		require.NoError(s.T(), s.storage.Create(s.ctx, tk))
	}

	categories, err := s.storage.ListCategories(s.ctx, "user-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"home", "work"}, categories)

	tags, err := s.storage.ListTags(s.ctx, "user-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"shop", "urgent"}, tags)
}

// TestUserStorage проверяет хранилище пользователей в той же базе
func (s *PostgresTestSuite) TestUserStorage() {
	u, err := s.users.GetByEmail(s.ctx, "USER-1@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "user-1", u.ID)

	dup := &user.User{ID: "user-3", Email: "user-1@example.com", Provider: user.ProviderPassword}
	assert.ErrorIs(s.T(), s.users.Create(s.ctx, dup), repo.ErrAlreadyExists)

	require.NoError(s.T(), s.users.SetTelegramChatID(s.ctx, "user-1", 42))
	u, err = s.users.GetByID(s.ctx, "user-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(42), u.TelegramChatID)

	// пользователи провайдера без email не конфликтуют друг с другом
	require.NoError(s.T(), s.users.Create(s.ctx, &user.User{ID: "fed-1", Provider: "https://id.example.com"}))
	require.NoError(s.T(), s.users.Create(s.ctx, &user.User{ID: "fed-2", Provider: "https://id.example.com"}))
	_, err = s.users.GetByEmail(s.ctx, "")
	assert.ErrorIs(s.T(), err, repo.ErrNotFound)

	assert.ErrorIs(s.T(), s.users.SetTelegramChatID(s.ctx, "nobody", 1), repo.ErrNotFound)
	_, err = s.users.GetByID(s.ctx, "nobody")
	assert.ErrorIs(s.T(), err, repo.ErrNotFound)
}
