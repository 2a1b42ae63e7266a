package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"memo/internal/models/task"
	repo "memo/internal/repository"
	"memo/internal/repository/task/inmemory"
	"memo/internal/service"
	"memo/internal/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTaskRepository - мок репозитория
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, userID, id string) (*task.Task, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task).Clone(), args.Error(1)
}

func (m *MockTaskRepository) List(ctx context.Context, userID string, filter task.Filter) ([]*task.Task, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) Update(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error) {
	args := m.Called(ctx, userID, id, completed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockTaskRepository) ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]*task.Task, error) {
	args := m.Called(ctx, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) ListCategories(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTaskRepository) ListTags(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var _ service.TaskRepository = (*MockTaskRepository)(nil)

// MockHooks записывает вызовы напоминаний
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) TaskChanged(ctx context.Context, t *task.Task) {
	m.Called(ctx, t)
}

func (m *MockHooks) TaskRemoved(ctx context.Context, taskID string) {
	m.Called(ctx, taskID)
}

const userID = "user-1"

// TestTaskService_HealthCheck тестирует HealthCheck
func TestTaskService_HealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*MockTaskRepository)
		expectError bool
	}{
		{
			name: "success - health check passes",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
			expectError: false,
		},
		{
			name: "error - health check fails",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(errors.New("db connection failed"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			tt.setupMock(mockRepo)

			svc := service.NewTaskService(mockRepo)
			err := svc.HealthCheck(context.Background())

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "проверка здоровья сервиса")
			} else {
				assert.NoError(t, err)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

// TestTaskService_CreateTask тестирует создание задачи и уведомление напоминаний
func TestTaskService_CreateTask(t *testing.T) {
	due := time.Now().Add(10 * time.Minute)

	tests := []struct {
		name      string
		options   []task.TaskOption
		setupMock func(*MockTaskRepository, *MockHooks)
		wantCode  string
	}{
		{
			name:    "success - task created",
			options: []task.TaskOption{task.WithTitle(" Buy milk "), task.WithDueAt(&due), task.WithPriority(task.PriorityHigh)},
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
					return tk.Title == "Buy milk" && tk.UserID == userID && tk.DueAt != nil
				})).Run(func(args mock.Arguments) {
					args.Get(1).(*task.Task).ID = "t-1"
				}).Return(nil)
				h.On("TaskChanged", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
					return tk.ID == "t-1"
				})).Return()
			},
		},
		{
			name:      "error - empty title",
			options:   []task.TaskOption{task.WithTitle("   ")},
			setupMock: func(m *MockTaskRepository, h *MockHooks) {},
			wantCode:  service.CodeValidation,
		},
		{
			name:      "error - title too long",
			options:   []task.TaskOption{task.WithTitle(strings.Repeat("я", 256))},
			setupMock: func(m *MockTaskRepository, h *MockHooks) {},
			wantCode:  service.CodeValidation,
		},
		{
			name:      "error - invalid priority",
			options:   []task.TaskOption{task.WithTitle("x"), task.WithPriority(task.Priority(7))},
			setupMock: func(m *MockTaskRepository, h *MockHooks) {},
			wantCode:  service.CodeValidation,
		},
		{
			name:    "error - duplicate id",
			options: []task.TaskOption{task.WithTitle("x")},
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("Create", mock.Anything, mock.Anything).Return(repo.ErrAlreadyExists)
			},
			wantCode: service.CodeAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			hooks := new(MockHooks)
			tt.setupMock(mockRepo, hooks)

			svc := service.NewTaskService(mockRepo, service.WithReminderHooks(hooks))
			created, err := svc.CreateTask(context.Background(), userID, tt.options...)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, service.HasCode(err, tt.wantCode), err.Error())
				hooks.AssertNotCalled(t, "TaskChanged", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "t-1", created.ID)
			}

			mockRepo.AssertExpectations(t)
			hooks.AssertExpectations(t)
		})
	}
}

// TestTaskService_GetTask тестирует получение задачи
func TestTaskService_GetTask(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	mockRepo.On("GetByID", mock.Anything, userID, "t-1").Return(&task.Task{ID: "t-1", UserID: userID}, nil)
	mockRepo.On("GetByID", mock.Anything, userID, "missing").Return(nil, repo.ErrNotFound)
	mockRepo.On("GetByID", mock.Anything, userID, "broken").Return(nil, errors.New("connection reset"))

	svc := service.NewTaskService(mockRepo)

	got, err := svc.GetTask(context.Background(), userID, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)

	_, err = svc.GetTask(context.Background(), userID, "missing")
	assert.Equal(t, service.OutcomeNotFound, service.Classify(err))

	_, err = svc.GetTask(context.Background(), userID, "broken")
	assert.Equal(t, service.OutcomeError, service.Classify(err))
	assert.Contains(t, err.Error(), "получение задачи")
}

// TestTaskService_ListTasks проверяет значения пагинации по умолчанию
func TestTaskService_ListTasks(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	mockRepo.On("List", mock.Anything, userID, task.Filter{Category: "work", Page: 1, Limit: 50}).
		Return([]*task.Task{{ID: "t-1"}}, nil)

	svc := service.NewTaskService(mockRepo)

	tasks, err := svc.ListTasks(context.Background(), userID, task.Filter{Category: "work"})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	_, err = svc.ListTasks(context.Background(), userID, task.Filter{Limit: 1000})
	assert.True(t, service.HasCode(err, service.CodeValidation))

	_, err = svc.SearchTasks(context.Background(), userID, "  ", 1, 10)
	assert.True(t, service.HasCode(err, service.CodeValidation))

	mockRepo.AssertExpectations(t)
}

// TestTaskService_UpdateTask тестирует слияние изменений
func TestTaskService_UpdateTask(t *testing.T) {
	newTitle := "New title"

	tests := []struct {
		name            string
		expectedVersion int
		setupMock       func(*MockTaskRepository, *MockHooks)
		wantCode        string
	}{
		{
			name: "success - only given fields change",
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("GetByID", mock.Anything, userID, "t-1").
					Return(&task.Task{ID: "t-1", UserID: userID, Title: "Old", Description: "keep", Version: 3}, nil)
				m.On("Update", mock.Anything, mock.MatchedBy(func(tk *task.Task) bool {
					return tk.Title == newTitle && tk.Description == "keep"
				})).Return(nil)
				h.On("TaskChanged", mock.Anything, mock.Anything).Return()
			},
		},
		{
			name: "success - retried after concurrent change",
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("GetByID", mock.Anything, userID, "t-1").
					Return(&task.Task{ID: "t-1", UserID: userID, Title: "Old", Version: 3}, nil)
				m.On("Update", mock.Anything, mock.Anything).Return(repo.ErrVersionConflict).Once()
				m.On("Update", mock.Anything, mock.Anything).Return(nil).Once()
				h.On("TaskChanged", mock.Anything, mock.Anything).Return()
			},
		},
		{
			name:            "error - stale expected version",
			expectedVersion: 2,
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("GetByID", mock.Anything, userID, "t-1").
					Return(&task.Task{ID: "t-1", UserID: userID, Title: "Old", Version: 3}, nil)
			},
			wantCode: service.CodeVersionConflict,
		},
		{
			name: "error - conflict persists",
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("GetByID", mock.Anything, userID, "t-1").
					Return(&task.Task{ID: "t-1", UserID: userID, Title: "Old", Version: 3}, nil)
				m.On("Update", mock.Anything, mock.Anything).Return(repo.ErrVersionConflict).Times(3)
			},
			wantCode: service.CodeVersionConflict,
		},
		{
			name: "error - task not found",
			setupMock: func(m *MockTaskRepository, h *MockHooks) {
				m.On("GetByID", mock.Anything, userID, "t-1").Return(nil, repo.ErrNotFound)
			},
			wantCode: service.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			hooks := new(MockHooks)
			tt.setupMock(mockRepo, hooks)

			svc := service.NewTaskService(mockRepo, service.WithReminderHooks(hooks))
			updated, err := svc.UpdateTask(context.Background(), userID, "t-1", tt.expectedVersion, task.WithTitle(newTitle))

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, service.HasCode(err, tt.wantCode), err.Error())
			} else {
				require.NoError(t, err)
				assert.Equal(t, newTitle, updated.Title)
			}

			mockRepo.AssertExpectations(t)
			hooks.AssertExpectations(t)
		})
	}
}

// TestTaskService_SetCompleted тестирует отметку выполнения
func TestTaskService_SetCompleted(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	hooks := new(MockHooks)

	done := &task.Task{ID: "t-1", UserID: userID, Completed: true, Version: 2}
	mockRepo.On("SetCompleted", mock.Anything, userID, "t-1", true).Return(done, nil)
	mockRepo.On("SetCompleted", mock.Anything, userID, "missing", true).Return(nil, repo.ErrNotFound)
	hooks.On("TaskChanged", mock.Anything, done).Return().Once()

	svc := service.NewTaskService(mockRepo, service.WithReminderHooks(hooks))

	got, err := svc.SetCompleted(context.Background(), userID, "t-1", true)
	require.NoError(t, err)
	assert.True(t, got.Completed)

	_, err = svc.SetCompleted(context.Background(), userID, "missing", true)
	assert.True(t, service.HasCode(err, service.CodeNotFound))

	mockRepo.AssertExpectations(t)
	hooks.AssertExpectations(t)
}

// TestTaskService_DeleteTask тестирует удаление задачи вместе с вложениями
func TestTaskService_DeleteTask(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	blobs := storage.NewWithFs(fs)
	_, err := blobs.Put(ctx, "users/user-1/tasks/t-1/a-doc.txt", strings.NewReader("doc"), 0)
	require.NoError(t, err)

	mockRepo := new(MockTaskRepository)
	hooks := new(MockHooks)
	mockRepo.On("GetByID", mock.Anything, userID, "t-1").Return(&task.Task{
		ID:     "t-1",
		UserID: userID,
		Attachments: map[string]task.Attachment{
			"a": {ID: "a", Path: "users/user-1/tasks/t-1/a-doc.txt"},
			"b": {ID: "b", Path: "users/user-1/tasks/t-1/gone.txt"},
		},
	}, nil)
	mockRepo.On("Delete", mock.Anything, userID, "t-1").Return(nil)
	hooks.On("TaskRemoved", mock.Anything, "t-1").Return()

	svc := service.NewTaskService(mockRepo, service.WithBlobStorage(blobs, 1024), service.WithReminderHooks(hooks))
	require.NoError(t, svc.DeleteTask(ctx, userID, "t-1"))

	exists, err := afero.Exists(fs, "/users/user-1/tasks/t-1/a-doc.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	mockRepo.AssertExpectations(t)
	hooks.AssertExpectations(t)
}

// TestTaskService_Attachments проходит полный цикл вложения на хранилищах в памяти
func TestTaskService_Attachments(t *testing.T) {
	ctx := context.Background()
	repository := inmemory.NewTaskStorage()
	blobs := storage.NewWithFs(afero.NewMemMapFs())
	svc := service.NewTaskService(repository, service.WithBlobStorage(blobs, 16))

	created, err := svc.CreateTask(ctx, userID, task.WithTitle("With file"))
	require.NoError(t, err)

	att, err := svc.AddAttachment(ctx, userID, created.ID, "notes.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), att.Size)
	assert.Contains(t, att.Path, "users/user-1/tasks/"+created.ID+"/")
	assert.Equal(t, "/tasks/"+created.ID+"/attachments/"+att.ID, att.URL)

	stored, err := svc.GetTask(ctx, userID, created.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Attachments, att.ID)

	meta, rc, err := svc.OpenAttachment(ctx, userID, created.ID, att.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "notes.txt", meta.Name)

	_, err = svc.AddAttachment(ctx, userID, created.ID, "big.bin", "", strings.NewReader(strings.Repeat("x", 17)))
	assert.True(t, service.HasCode(err, service.CodeTooLarge))
	assert.Equal(t, service.OutcomeInvalid, service.Classify(err))

	_, err = svc.AddAttachment(ctx, "user-2", created.ID, "x.txt", "", strings.NewReader("x"))
	assert.True(t, service.HasCode(err, service.CodeNotFound))

	require.NoError(t, svc.RemoveAttachment(ctx, userID, created.ID, att.ID))
	_, _, err = svc.OpenAttachment(ctx, userID, created.ID, att.ID)
	assert.True(t, service.HasCode(err, service.CodeNotFound))

	err = svc.RemoveAttachment(ctx, userID, created.ID, att.ID)
	assert.True(t, service.HasCode(err, service.CodeNotFound))
}

func TestTaskService_CategoriesAndTags(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	mockRepo.On("ListCategories", mock.Anything, userID).Return([]string{"home"}, nil)
	mockRepo.On("ListTags", mock.Anything, userID).Return(nil, errors.New("boom"))

	svc := service.NewTaskService(mockRepo)

	categories, err := svc.ListCategories(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, categories)

	_, err = svc.ListTags(context.Background(), userID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "получение тегов")
}
