package auth

import (
	"context"
	"errors"
	"strings"

	domuser "example.com/pod-fulfillment/internal/domain/user"
)

type PasswordComparer interface {
	Compare(hash string, password string) error
}

type Claims struct {
	UserID   int64
	RoleCode domuser.RoleCode
	Email    string
	Name     string
}

func (c *Claims) Actor() domuser.Actor {
	return domuser.Actor{UserID: c.UserID, RoleCode: c.RoleCode}
}

type TokenService interface {
	GenerateToken(u *domuser.User) (string, error)
	ParseToken(token string) (*Claims, error)
}

type Service struct {
	userRepo domuser.Repository
	checker  PasswordComparer
	tokens   TokenService
}

func NewService(
	userRepo domuser.Repository,
	checker PasswordComparer,
	tokens TokenService,
) *Service {
	return &Service{
		userRepo: userRepo,
		checker:  checker,
		tokens:   tokens,
	}
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	Token string
	User  *domuser.User
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, domuser.ErrInvalidCredential
	}

	u, err := s.userRepo.GetByEmail(ctx, email)
	if errors.Is(err, domuser.ErrUserNotFound) {
		return nil, domuser.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if err := s.checker.Compare(u.PasswordHash, in.Password); err != nil {
		return nil, domuser.ErrUnauthorized
	}

	token, err := s.tokens.GenerateToken(u)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token: token,
		User:  u,
	}, nil
}

// Authenticate resolves a bearer token into the calling actor.
func (s *Service) Authenticate(token string) (domuser.Actor, error) {
	if strings.TrimSpace(token) == "" {
		return domuser.Actor{}, domuser.ErrUnauthorized
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil || claims.UserID <= 0 {
		return domuser.Actor{}, domuser.ErrUnauthorized
	}
	return claims.Actor(), nil
}
