package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/pquerna/otp/totp"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrOTPRequired        = errors.New("otp_required")
	ErrUserExists         = errors.New("user_exists")
	ErrUserNotFound       = errors.New("user_not_found")
)

// User is an account known to the stub service.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Authorities  []string

	// TOTPSecret enables a second factor when set.
	TOTPSecret string
}

// NewUser describes an account to create.
type NewUser struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Authorities []string
	TOTPSecret  string
}

// UserService keeps accounts in memory.
type UserService struct {
	Hasher cryptox.PasswordHasher

	mu     sync.RWMutex
	nextID int64
	byName map[string]*User
	byID   map[int64]*User
}

func NewUserService(hasher cryptox.PasswordHasher) *UserService {
	return &UserService{
		Hasher: hasher,
		byName: make(map[string]*User),
		byID:   make(map[int64]*User),
	}
}

// Create adds an account and returns it.
func (s *UserService) Create(_ context.Context, nu NewUser) (User, error) {
	username := strings.ToLower(strings.TrimSpace(nu.Username))
	if username == "" || nu.Password == "" {
		return User{}, ErrInvalidCredentials
	}

	hash, err := s.Hasher.Hash(nu.Password)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[username]; ok {
		return User{}, ErrUserExists
	}

	s.nextID++
	u := &User{
		ID:           s.nextID,
		Username:     username,
		DisplayName:  nu.DisplayName,
		Email:        nu.Email,
		PasswordHash: hash,
		Authorities:  slices.Clone(nu.Authorities),
		TOTPSecret:   nu.TOTPSecret,
	}
	s.byName[username] = u
	s.byID[u.ID] = u

	return *u, nil
}

// Authenticate checks the password and, for accounts with a second factor,
// the TOTP code.
func (s *UserService) Authenticate(_ context.Context, username, password, otpCode string) (User, error) {
	s.mu.RLock()
	u, ok := s.byName[strings.ToLower(strings.TrimSpace(username))]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}

	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		return User{}, ErrInvalidCredentials
	}

	if u.TOTPSecret != "" {
		if otpCode == "" {
			return User{}, ErrOTPRequired
		}
		if !totp.Validate(otpCode, u.TOTPSecret) {
			return User{}, ErrInvalidCredentials
		}
	}

	return *u, nil
}

func (s *UserService) GetByID(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

// SetAuthorities replaces a user's authority list. New tokens pick it up on
// the next refresh.
func (s *UserService) SetAuthorities(_ context.Context, id int64, authorities []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Authorities = slices.Clone(authorities)
	return nil
}
