// Package authpw provides email/password authentication for operators.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"cargoops/api/internal/store"
)

// OperatorStore defines the storage interface for auth.
type OperatorStore interface {
	GetOperatorByEmail(ctx context.Context, email string) (store.Operator, error)
	UpdateOperatorPassword(ctx context.Context, operatorID, passwordHash string) error
}

// Service authenticates operators against bcrypt password hashes.
type Service struct {
	store OperatorStore
}

func NewService(store OperatorStore) *Service {
	return &Service{store: store}
}

// SignIn authenticates an operator. The same error is returned for an
// unknown email and a wrong password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Operator, error) {
	if email == "" || password == "" {
		return store.Operator{}, errors.New("email and password are required")
	}
	operator, err := s.store.GetOperatorByEmail(ctx, email)
	if err != nil {
		return store.Operator{}, errors.New("invalid email or password")
	}
	if operator.PasswordHash == "" {
		return store.Operator{}, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)); err != nil {
		return store.Operator{}, errors.New("invalid email or password")
	}
	return operator, nil
}

// SetPassword replaces an operator's password.
func (s *Service) SetPassword(ctx context.Context, operatorID, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateOperatorPassword(ctx, operatorID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// HashPassword produces a bcrypt hash, also used when seeding operators.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
