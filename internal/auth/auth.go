// Package auth signs users up and in and issues the JWTs the API and websocket accept.
package auth

import (
	"campuscare/backend/internal/apperr"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "campuscare-service"

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)

var errInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID string      `json:"uid"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	Storage     storage.Storage
	secret      []byte
	ttl         time.Duration
	emailDomain string
	log         *logger.Logger
}

func NewService(s storage.Storage, secret string, ttl time.Duration, emailDomain string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Service{Storage: s, secret: []byte(secret), ttl: ttl, emailDomain: emailDomain, log: log}
}

// StudentEmail is the synthetic address a student account is stored with.
func StudentEmail(username, domain string) string {
	return fmt.Sprintf("%s.student@%s", username, domain)
}

func normalizeUsername(username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !usernamePattern.MatchString(username) {
		return "", apperr.Invalid("username must be 3-32 characters of a-z, 0-9, '.', '_' or '-'")
	}
	return username, nil
}

// SignUp creates a student account and returns it with a token.
func (s *Service) SignUp(ctx context.Context, username, password, displayName, language string) (*models.User, string, error) {
	profile := models.User{
		Role:        models.RoleStudent,
		DisplayName: strings.TrimSpace(displayName),
		Language:    strings.ToLower(strings.TrimSpace(language)),
	}
	u, err := s.create(ctx, username, password, profile, func(name string) string {
		return StudentEmail(name, s.emailDomain)
	})
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("Student signed up", "user_id", u.ID)
	return u, token, nil
}

// CreateStaff creates a counselor or admin account.
func (s *Service) CreateStaff(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	if !role.IsStaff() {
		return nil, apperr.Invalid("role must be counselor or admin")
	}
	return s.create(ctx, username, password, models.User{Role: role}, func(name string) string {
		return fmt.Sprintf("%s.%s@%s", name, role, s.emailDomain)
	})
}

// create fills in the credentials of profile and stores it.
func (s *Service) create(ctx context.Context, username, password string, profile models.User, email func(string) string) (*models.User, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if _, err := s.Storage.GetUserByUsername(ctx, name); err == nil {
		return nil, apperr.Conflict("username is taken")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &profile
	u.Username = name
	u.Email = email(name)
	u.PasswordHash = string(hash)
	if u.Language == "" {
		u.Language = localization.DefaultLanguage
	}
	if err := s.Storage.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SignIn checks the password and returns the user with a fresh token.
func (s *Service) SignIn(ctx context.Context, username, password string) (*models.User, string, error) {
	u, err := s.Storage.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperr.Unauthorized("invalid credentials")
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *Service) IssueToken(u *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken validates a token and returns the actor it was issued to.
func (s *Service) ParseToken(tokenString string) (models.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return models.Actor{}, err
	}
	if !token.Valid || claims.UserID == "" || !claims.Role.Valid() {
		return models.Actor{}, errInvalidToken
	}
	return models.Actor{ID: claims.UserID, Role: claims.Role}, nil
}
