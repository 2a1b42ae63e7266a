package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"memo/internal/logger"
	"memo/internal/models/task"
	repo "memo/internal/repository"

	"github.com/google/uuid"
)

type TaskStorage struct {
	storage map[string]*task.Task
	mtx     *sync.RWMutex
	ids     []string
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[string]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []string{},
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Хранилище в памяти доступно")
	return nil
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if taskToCreate.ID == "" {
		taskToCreate.ID = uuid.NewString()
	}
	if _, ok := s.storage[taskToCreate.ID]; ok {
		return repo.ErrAlreadyExists
	}

	taskToCreate.CreatedAt = time.Now().UTC()
	taskToCreate.UpdatedAt = nil
	taskToCreate.Version = 1
	taskToCreate.Tags = task.NormalizeTags(taskToCreate.Tags)

	s.storage[taskToCreate.ID] = taskToCreate.Clone()
	s.ids = append(s.ids, taskToCreate.ID)
	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, userID, id string) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok || taskToGet.UserID != userID {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

// Update применяется только к актуальной версии задачи
func (s *TaskStorage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[taskToUpdate.ID]
	if !ok || existed.UserID != taskToUpdate.UserID {
		return repo.ErrNotFound
	}
	if existed.Version != taskToUpdate.Version {
		return repo.ErrVersionConflict
	}

	now := time.Now().UTC()
	taskToUpdate.UpdatedAt = &now
	taskToUpdate.Version++
	taskToUpdate.CreatedAt = existed.CreatedAt
	taskToUpdate.Tags = task.NormalizeTags(taskToUpdate.Tags)

	s.storage[taskToUpdate.ID] = taskToUpdate.Clone()
	return nil
}

// SetCompleted меняет одно поле без проверки версии
func (s *TaskStorage) SetCompleted(ctx context.Context, userID, id string, completed bool) (*task.Task, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[id]
	if !ok || existed.UserID != userID {
		return nil, repo.ErrNotFound
	}

	now := time.Now().UTC()
	existed.Completed = completed
	existed.UpdatedAt = &now
	existed.Version++

	return existed.Clone(), nil
}

func (s *TaskStorage) Delete(ctx context.Context, userID, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[id]
	if !ok || existed.UserID != userID {
		return repo.ErrNotFound
	}

	delete(s.storage, id)
	for ind, val := range s.ids {
		if val == id {
			s.ids = append(s.ids[:ind], s.ids[ind+1:]...)
			break
		}
	}
	return nil
}

// List отдаёт задачи пользователя, новые первыми
func (s *TaskStorage) List(ctx context.Context, userID string, filter task.Filter) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*task.Task{}
	skipped := 0
	offset := filter.Offset()

	for i := len(s.ids) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(res) >= filter.Limit {
			break
		}

		taskToGet := s.storage[s.ids[i]]
		if taskToGet.UserID != userID || !filter.Matches(taskToGet) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}

		res = append(res, taskToGet.Clone())
	}

	return res, nil
}

// ListDueBetween ищет по всем пользователям незавершённые задачи со сроком в [from, to],
// ближайшие сроки первыми, чтобы limit отсекал самые дальние
func (s *TaskStorage) ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var tasks []*task.Task
	for _, id := range s.ids {
		t := s.storage[id]
		if t.IsDueWithin(from, to) {
			tasks = append(tasks, t.Clone())
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].DueAt.Before(*tasks[j].DueAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (s *TaskStorage) ListCategories(ctx context.Context, userID string) ([]string, error) {
	return s.distinct(userID, func(t *task.Task) []string {
		if t.Category == "" {
			return nil
		}
		return []string{t.Category}
	}), nil
}

func (s *TaskStorage) ListTags(ctx context.Context, userID string) ([]string, error) {
	return s.distinct(userID, func(t *task.Task) []string { return t.Tags }), nil
}

func (s *TaskStorage) distinct(userID string, values func(*task.Task) []string) []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	seen := map[string]struct{}{}
	res := []string{}
	for _, id := range s.ids {
		t := s.storage[id]
		if t.UserID != userID {
			continue
		}
		for _, v := range values(t) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			res = append(res, v)
		}
	}
	sort.Strings(res)
	return res
}
