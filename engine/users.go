package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrInvalidCredentials is returned by Login; the API layer maps it to
// 401 without leaking which part of the credentials was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Register creates a user account. Passwords are stored as given;
// hardening them is outside this service.
func (e *Engine) Register(ctx context.Context, fullName, email, password string) (*models.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" || password == "" {
		return nil, validationErr("full name, email, and password are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, validationErr("invalid email format")
	}
	if len(password) < 6 {
		return nil, validationErr("password must be at least 6 characters long")
	}

	now := e.clock.Now()
	user := &models.User{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Email:     email,
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.store.Atomic(ctx, func(tx Store) error {
		if _, err := tx.UserByEmail(ctx, email); err == nil {
			return validationErr("email already registered")
		}
		if err := tx.InsertUser(ctx, user); err != nil {
			return wrapErr(err, "failed to create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and returns the account.
func (e *Engine) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, validationErr("email and password are required")
	}
	user, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapErr(err, "failed to look up user")
	}
	if user.Password != password {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (e *Engine) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, wrapErr(err, "user not found")
	}
	return user, nil
}
