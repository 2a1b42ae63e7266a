package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"memo/internal/config"
	"memo/internal/logger"
	"memo/internal/models/user"
	repo "memo/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Session - выданный токен и профиль пользователя.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// IdentityClaims - содержимое токена внешнего провайдера.
type IdentityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users UserRepository
	cfg   config.AuthConfig
	clk   clock.Clock
}

func NewAuthService(users UserRepository, cfg config.AuthConfig, clk clock.Clock) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &AuthService{users: users, cfg: cfg, clk: clk}
}

func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewValidationError("email", "неверный адрес")
	}
	if len(password) < minPasswordLength {
		return nil, NewValidationError("password", fmt.Sprintf("не короче %d символов", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	if strings.TrimSpace(displayName) == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	u := &user.User{
		DisplayName:  strings.TrimSpace(displayName),
		Email:        email,
		Provider:     user.ProviderPassword,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, NewBusinessError(CodeAlreadyExists, "пользователь с таким email уже существует",
				ToDetail("email", email))
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	logger.Info("Service: Зарегистрирован пользователь", zap.String("user_id", u.ID))
	return s.issue(u)
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	if u.Provider != user.ProviderPassword || u.PasswordHash == "" {
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logger.Info("Service: Неверный пароль", zap.String("user_id", u.ID))
		return nil, invalidCredentials()
	}

	return s.issue(u)
}

// SignInWithIDToken обменивает токен провайдера на сессию; пользователь
// создаётся при первом входе.
func (s *AuthService) SignInWithIDToken(ctx context.Context, idToken string) (*Session, error) {
	if s.cfg.FederatedSecret == "" {
		return nil, NewBusinessError(CodeUnauthorized, "вход через внешний провайдер не настроен")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clk.Now),
	}
	if s.cfg.FederatedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.FederatedIssuer))
	}

	claims := &IdentityClaims{}
	if _, err := jwt.ParseWithClaims(idToken, claims, s.keyFunc(s.cfg.FederatedSecret), opts...); err != nil {
		logger.Info("Service: Отклонён токен провайдера", zap.Error(err))
		return nil, unauthorized(err)
	}
	if claims.Subject == "" {
		return nil, unauthorized(errors.New("пустой sub"))
	}

	provider := claims.Issuer
	if provider == "" {
		provider = "federated"
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(provider+"|"+claims.Subject)).String()

	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		u = &user.User{
			ID:          id,
			DisplayName: claims.Name,
			Email:       claims.Email,
			PhotoURL:    claims.Picture,
			Provider:    provider,
		}
		err = s.users.Create(ctx, u)
		if errors.Is(err, repo.ErrAlreadyExists) {
			// параллельный первый вход того же пользователя
			if existing, getErr := s.users.GetByID(ctx, id); getErr == nil {
				u, err = existing, nil
			} else {
				return nil, NewBusinessError(CodeAlreadyExists, "email уже занят другим способом входа",
					ToDetail("email", claims.Email))
			}
		}
		if err == nil {
			logger.Info("Service: Создан пользователь провайдера",
				zap.String("user_id", id),
				zap.String("provider", provider))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("вход через провайдера: %w", err)
	}

	return s.issue(u)
}

// ParseToken проверяет токен сессии и возвращает id пользователя.
func (s *AuthService) ParseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc(s.cfg.JWTSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clk.Now),
	)
	if err != nil {
		return "", unauthorized(err)
	}
	if claims.Subject == "" {
		return "", unauthorized(errors.New("пустой sub"))
	}
	return claims.Subject, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, NewNotFound("пользователь", userID)
		}
		return nil, fmt.Errorf("получение профиля: %w", err)
	}
	return u, nil
}

// LinkTelegram привязывает чат для уведомлений; 0 отвязывает.
func (s *AuthService) LinkTelegram(ctx context.Context, userID string, chatID int64) error {
	if err := s.users.SetTelegramChatID(ctx, userID, chatID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("пользователь", userID)
		}
		return fmt.Errorf("привязка telegram: %w", err)
	}
	logger.Info("Service: Telegram привязан", zap.String("user_id", userID), zap.Int64("chat_id", chatID))
	return nil
}

func (s *AuthService) issue(u *user.User) (*Session, error) {
	now := s.clk.Now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("подпись токена: %w", err)
	}

	return &Session{Token: signed, ExpiresAt: expiresAt, User: u}, nil
}

func (s *AuthService) keyFunc(secret string) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}
}

func invalidCredentials() *BusinessError {
	return NewBusinessError(CodeInvalidCredentials, "неверный email или пароль")
}

func unauthorized(err error) *BusinessError {
	e := NewBusinessError(CodeUnauthorized, "требуется авторизация")
	e.Err = err
	return e
}
