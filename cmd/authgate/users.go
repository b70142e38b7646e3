package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/otp"
)

type userEntry struct {
	ID           string `json:"id"`
	Identifier   string `json:"identifier"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	PasswordHash string `json:"password_hash"`
	Status       string `json:"status"`
	Role         string `json:"role"`
}

// fileUsers is a UserProvider over a JSON array of users. Status changes and
// rehashed passwords live in memory only.
type fileUsers struct {
	mu    sync.RWMutex
	users map[string]authgate.UserRecord
}

func loadUsers(path string) (*fileUsers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []userEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("users file %s: %w", path, err)
	}
	return newFileUsers(entries)
}

func newFileUsers(entries []userEntry) (*fileUsers, error) {
	f := &fileUsers{users: make(map[string]authgate.UserRecord, len(entries))}
	for _, e := range entries {
		if e.ID == "" || e.PasswordHash == "" {
			return nil, fmt.Errorf("user %q: id and password_hash are required", e.Identifier)
		}
		status := authgate.AccountStatus(e.Status)
		if status == "" {
			status = authgate.AccountActive
		}
		if !status.Valid() {
			return nil, fmt.Errorf("user %q: invalid status %q", e.ID, e.Status)
		}
		identifier := e.Identifier
		if identifier == "" {
			identifier = e.Email
		}
		f.users[e.ID] = authgate.UserRecord{
			UserID:       e.ID,
			Identifier:   strings.ToLower(identifier),
			Email:        e.Email,
			Phone:        e.Phone,
			PasswordHash: e.PasswordHash,
			Status:       status,
			Role:         e.Role,
		}
	}
	return f, nil
}

func (f *fileUsers) GetUserByIdentifier(_ context.Context, identifier string) (authgate.UserRecord, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.users {
		if u.Identifier == identifier {
			return u, nil
		}
	}
	return authgate.UserRecord{}, authgate.ErrUserNotFound
}

func (f *fileUsers) GetUserByID(_ context.Context, userID string) (authgate.UserRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.users[userID]
	if !ok {
		return authgate.UserRecord{}, authgate.ErrUserNotFound
	}
	return u, nil
}

func (f *fileUsers) UpdateAccountStatus(_ context.Context, userID string, status authgate.AccountStatus) (authgate.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return authgate.UserRecord{}, authgate.ErrUserNotFound
	}
	u.Status = status
	f.users[userID] = u
	return u, nil
}

func (f *fileUsers) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return authgate.ErrUserNotFound
	}
	u.PasswordHash = newHash
	f.users[userID] = u
	return nil
}

// logSender stands in for an email/SMS gateway and writes codes to the log.
type logSender struct {
	log log.FieldLogger
}

func (s logSender) Send(_ context.Context, user authgate.UserRecord, purpose string, method otp.Method, code string) (time.Time, error) {
	s.log.WithFields(log.Fields{
		"user_id": user.UserID,
		"purpose": purpose,
		"method":  method,
		"code":    code,
	}).Warn("authgate: otp delivery is not configured, code logged")
	return time.Time{}, nil
}

// roleTable is the optional --roles file.
type roleTable struct {
	Permissions []string            `json:"permissions"`
	Roles       map[string][]string `json:"roles"`
}

func loadRoles(path string) (*roleTable, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rt roleTable
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("roles file %s: %w", path, err)
	}
	return &rt, nil
}
