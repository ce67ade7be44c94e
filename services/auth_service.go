package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type IAuthService interface {
	Register(ctx context.Context, username, password string) (Session, error)
	Login(ctx context.Context, username, password string) (Session, error)
	Me(ctx context.Context, userID domain.UserID) (domain.User, error)
}

// Session is what a successful register or login hands back to the client.
type Session struct {
	Token string
	User  domain.User
}

type AuthService struct {
	log    *slog.Logger
	users  contract.IUserRepository
	tokens *auth.TokenManager
	now    func() time.Time
}

func NewAuthService(log *slog.Logger, users contract.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{log: log, users: users, tokens: tokens, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (Session, error) {
	// 1. Validate business rules before any expensive cryptographic operation
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return Session{}, err
	}

	// 2. Hash with Argon2id, the repository never sees plain passwords
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("%w: hashing failed: %v", errors.ErrInternal, err)
	}

	user := domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	// 3. Will propagate ErrUserAlreadyExists if the username is taken
	if err = s.users.Create(ctx, user); err != nil {
		return Session{}, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("User registered", "user_id", user.ID)
	return Session{Token: token, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Kind(err) == errors.ClassInternal {
			return Session{}, err
		}
		// Generic error to prevent user enumeration
		return Session{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

// Me resolves the authenticated requester.
func (s *AuthService) Me(ctx context.Context, userID domain.UserID) (domain.User, error) {
	if userID == "" {
		return domain.User{}, errors.ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, errors.ErrUserNotFound) {
		// The token outlived its user
		return domain.User{}, errors.ErrInvalidToken
	}
	return user, err
}
