package inmemory

import (
	"context"
	"strings"
	"sync"
	"time"

	"memo/internal/models/user"
	repo "memo/internal/repository"

	"github.com/google/uuid"
)

type UserStorage struct {
	mtx     sync.RWMutex
	byID    map[string]*user.User
	byEmail map[string]string
}

func NewUserStorage() *UserStorage {
	return &UserStorage{
		byID:    make(map[string]*user.User),
		byEmail: make(map[string]string),
	}
}

func (s *UserStorage) Create(ctx context.Context, u *user.User) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	email := strings.ToLower(u.Email)
	if _, ok := s.byID[u.ID]; ok {
		return repo.ErrAlreadyExists
	}
	// пустой email уникальным не считается: провайдер может его не передать
	if _, ok := s.byEmail[email]; ok && email != "" {
		return repo.ErrAlreadyExists
	}

	u.CreatedAt = time.Now().UTC()
	stored := *u
	s.byID[u.ID] = &stored
	if email != "" {
		s.byEmail[email] = u.ID
	}
	return nil
}

func (s *UserStorage) GetByID(ctx context.Context, id string) (*user.User, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	res := *u
	return &res, nil
}

func (s *UserStorage) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if email == "" {
		return nil, repo.ErrNotFound
	}
	s.mtx.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mtx.RUnlock()
	if !ok {
		return nil, repo.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *UserStorage) SetTelegramChatID(ctx context.Context, id string, chatID int64) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.TelegramChatID = chatID
	return nil
}
