package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/karanmehta/agenda/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(username, fullName, email string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (username, full_name, email) VALUES (?, ?, ?)`,
		username, fullName, email,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT id, username, full_name, email FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(
		`SELECT id, username, full_name, email FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Username, &u.FullName, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return &u, nil
}

// SetFriends replaces the user's friend network.
func (s *UserStore) SetFriends(userID int64, friendIDs []int64) error {
	parts := make([]string, len(friendIDs))
	for i, id := range friendIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	_, err := s.db.Exec(`UPDATE users SET friend_ids = ? WHERE id = ?`, strings.Join(parts, ","), userID)
	if err != nil {
		return fmt.Errorf("set friends: %w", err)
	}
	return nil
}

// FriendIDs returns the user's friend network, empty when none.
func (s *UserStore) FriendIDs(userID int64) ([]int64, error) {
	var raw string
	err := s.db.QueryRow(`SELECT friend_ids FROM users WHERE id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query friend ids: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse friend id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SearchFriends finds collaborators within the user's friend network by name,
// email, username, or any of the three.
func (s *UserStore) SearchFriends(userID int64, query, searchType string) ([]model.User, error) {
	friendIDs, err := s.FriendIDs(userID)
	if err != nil {
		return nil, err
	}
	if len(friendIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(friendIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(friendIDs)+3)
	for _, id := range friendIDs {
		args = append(args, id)
	}

	pattern := "%" + query + "%"
	var where string
	switch searchType {
	case "email":
		where = "email LIKE ?"
		args = append(args, pattern)
	case "username":
		where = "username LIKE ?"
		args = append(args, pattern)
	case "name":
		where = "full_name LIKE ?"
		args = append(args, pattern)
	default: // "any"
		where = "(full_name LIKE ? OR email LIKE ? OR username LIKE ?)"
		args = append(args, pattern, pattern, pattern)
	}

	rows, err := s.db.Query(
		`SELECT id, username, full_name, email FROM users
		 WHERE id IN (`+placeholders+`) AND `+where+`
		 ORDER BY id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("search friends: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
