// Package memory is an in-process storage backend with the same semantics as
// the postgres repo: unique emails, one code slot per user and purpose, and
// conditional consumption under a lock. It backs tests and local runs without
// a database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"client_portal/internal/models"
	"client_portal/internal/storage"
)

type codeKey struct {
	userID  int64
	purpose models.CodePurpose
}

type Storage struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User
	codes  map[codeKey]*models.OTPCode
}

func New() *Storage {
	return &Storage{
		users: make(map[int64]*models.User),
		codes: make(map[codeKey]*models.OTPCode),
	}
}

func (s *Storage) SaveUser(_ context.Context, fullName, email string, passHash []byte, role string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return 0, storage.ErrUserExists
		}
	}

	s.nextID++
	s.users[s.nextID] = &models.User{
		ID:       s.nextID,
		FullName: fullName,
		Email:    email,
		PassHash: passHash,
		Role:     role,
	}

	return s.nextID, nil
}

func (s *Storage) UserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *Storage) UserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		return *u, nil
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *Storage) SetEmailVerified(_ context.Context, uid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uid]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.IsVerified = true

	return nil
}

func (s *Storage) UpdatePassword(_ context.Context, uid int64, passHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uid]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PassHash = passHash

	return nil
}

func (s *Storage) AuthorizeReset(_ context.Context, uid int64, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uid]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.ResetAuthorizedUntil = &until

	return nil
}

func (s *Storage) ConsumeResetGrant(_ context.Context, uid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uid]
	if !ok || u.ResetAuthorizedUntil == nil || u.ResetAuthorizedUntil.Before(time.Now()) {
		return storage.ErrResetNotAuthorized
	}
	u.ResetAuthorizedUntil = nil

	return nil
}

func (s *Storage) UpsertCode(_ context.Context, code models.OTPCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := code
	s.codes[codeKey{code.UserID, code.Purpose}] = &c

	return nil
}

func (s *Storage) ConsumeCode(_ context.Context, userID int64, purpose models.CodePurpose, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[codeKey{userID, purpose}]
	if !ok || c.Consumed {
		return storage.ErrNoPendingCode
	}

	if time.Now().After(c.ExpiresAt) {
		return storage.ErrCodeExpired
	}

	if c.Code != candidate {
		return storage.ErrCodeMismatch
	}

	c.Consumed = true

	return nil
}

// PendingCode exposes the stored code for assertions in tests.
func (s *Storage) PendingCode(userID int64, purpose models.CodePurpose) (models.OTPCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[codeKey{userID, purpose}]
	if !ok {
		return models.OTPCode{}, false
	}

	return *c, true
}

// Cache is the in-process counterpart of the redis fast-path guard.
type Cache struct {
	mu      sync.Mutex
	pending map[string]struct{}
	used    map[string]struct{}
}

func NewCache() *Cache {
	return &Cache{
		pending: make(map[string]struct{}),
		used:    make(map[string]struct{}),
	}
}

func (c *Cache) SetCodePending(_ context.Context, userID int64, purpose models.CodePurpose, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[cacheKey(userID, purpose)] = struct{}{}

	return nil
}

func (c *Cache) DeleteCodePending(_ context.Context, userID int64, purpose models.CodePurpose) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, cacheKey(userID, purpose))

	return nil
}

// MarkCodeUsed mimics SETNX: true only for the first caller.
func (c *Cache) MarkCodeUsed(_ context.Context, userID int64, purpose models.CodePurpose, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(userID, purpose)
	if _, ok := c.used[key]; ok {
		return false, nil
	}
	c.used[key] = struct{}{}

	return true, nil
}

func (c *Cache) ClearCodeUsed(_ context.Context, userID int64, purpose models.CodePurpose) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.used, cacheKey(userID, purpose))

	return nil
}

func cacheKey(userID int64, purpose models.CodePurpose) string {
	return fmt.Sprintf("%d:%s", userID, purpose)
}
