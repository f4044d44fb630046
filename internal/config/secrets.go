package config

import (
	"errors"
	"fmt"

	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/zalando/go-keyring"
)

const serviceName = appName

// ErrPasswordNotFound is returned when no password is stored for a store
var ErrPasswordNotFound = errors.New("password not found in keyring")

// PasswordSaveError reports a failed keyring write
type PasswordSaveError struct {
	Err error
}

func (e *PasswordSaveError) Error() string {
	return fmt.Sprintf("failed to save password to keyring: %v", e.Err)
}

func (e *PasswordSaveError) Unwrap() error {
	return e.Err
}

// PasswordReadError reports a keyring read failure other than a missing entry
type PasswordReadError struct {
	Err error
}

func (e *PasswordReadError) Error() string {
	return fmt.Sprintf("failed to read password from keyring: %v", e.Err)
}

func (e *PasswordReadError) Unwrap() error {
	return e.Err
}

// PasswordStore keeps store passwords in the OS keyring
type PasswordStore struct{}

// NewPasswordStore returns a store backed by the OS keyring
func NewPasswordStore() *PasswordStore {
	return &PasswordStore{}
}

// Save stores the password of p. Empty passwords are not saved.
func (ps *PasswordStore) Save(p models.Parameters) error {
	if p.Password == "" {
		return nil
	}
	if err := keyring.Set(serviceName, makeKey(p), p.Password); err != nil {
		return &PasswordSaveError{Err: err}
	}
	return nil
}

// Get returns the password stored for p
func (ps *PasswordStore) Get(p models.Parameters) (string, error) {
	password, err := keyring.Get(serviceName, makeKey(p))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrPasswordNotFound
		}
		return "", &PasswordReadError{Err: err}
	}
	return password, nil
}

// Delete removes the password stored for p
func (ps *PasswordStore) Delete(p models.Parameters) error {
	err := keyring.Delete(serviceName, makeKey(p))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}

// FillPassword sets p.Password from the keyring when the configuration
// left it empty. A missing entry is not an error: the store may not need one.
func (ps *PasswordStore) FillPassword(p *models.Parameters) error {
	if p.Password != "" || p.Driver == "sqlite" {
		return nil
	}
	password, err := ps.Get(*p)
	if errors.Is(err, ErrPasswordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.Password = password
	return nil
}

// makeKey creates a unique key for password storage
func makeKey(p models.Parameters) string {
	return fmt.Sprintf("%s:%d:%s:%s", p.Host, p.Port, p.Database(models.SchemaMain), p.User)
}
