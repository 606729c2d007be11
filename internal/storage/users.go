package storage

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// CreateUser registers a user with a bcrypt-hashed password. Creating a
// username that already exists is not an error: when the new role is admin
// the existing row is promoted, otherwise the call is a no-op. Returns the
// id of the (new or existing) row.
func (s *Store) CreateUser(username, password, role string) (int64, error) {
	if role == "" {
		role = RoleUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		username, string(hash), role,
	)
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", username, err)
	}

	if role == RoleAdmin {
		if _, err := s.db.Exec(
			"UPDATE users SET role = ? WHERE username = ?", RoleAdmin, username,
		); err != nil {
			return 0, fmt.Errorf("promote user %s: %w", username, err)
		}
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM users WHERE username = ?", username).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve user %s: %w", username, err)
	}
	return id, nil
}

// GetUserByName returns the user row for a username, or nil when absent.
func (s *Store) GetUserByName(username string) (*User, error) {
	var u User
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return &u, nil
}

// Authenticate checks a username/password pair and returns the user on
// success, or nil when the user is unknown or the password does not match.
func (s *Store) Authenticate(username, password string) (*User, error) {
	u, err := s.GetUserByName(username)
	if err != nil || u == nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

// ListUsers returns all users ordered by username, without password hashes.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query("SELECT id, username, role, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
