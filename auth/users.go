// Copyright 2021 The jackal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned when verifying credentials of an unknown user.
var ErrUserNotFound = errors.New("auth: user not found")

// UserConfig contains a single user credentials.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Users stores user password hashes.
type Users struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewUsers returns a user set built from cfg.
// Every password hash must be a valid bcrypt hash.
func NewUsers(cfg []UserConfig) (*Users, error) {
	u := &Users{hashes: make(map[string][]byte, len(cfg))}
	for _, uc := range cfg {
		if len(uc.Username) == 0 {
			return nil, fmt.Errorf("auth.Users: username is required")
		}
		if _, err := bcrypt.Cost([]byte(uc.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth.Users: invalid password_hash for user '%s': %v", uc.Username, err)
		}
		u.hashes[uc.Username] = []byte(uc.PasswordHash)
	}
	return u, nil
}

// SetPassword sets username password.
func (u *Users) SetPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.hashes[username] = hash
	u.mu.Unlock()
	return nil
}

// VerifyPassword checks password against username stored hash.
func (u *Users) VerifyPassword(username, password string) (bool, error) {
	u.mu.RLock()
	hash, ok := u.hashes[username]
	u.mu.RUnlock()
	if !ok {
		return false, ErrUserNotFound
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch err {
	case nil:
		return true, nil
	case bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	}
	return false, err
}

// HashPassword returns the bcrypt hash of password, suitable for a password_hash configuration value.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
