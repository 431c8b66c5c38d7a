package store

import (
	"database/sql"
	"fmt"

	"github.com/karanmehta/agenda/internal/model"
)

// GoogleAccountStore reads the external-calendar credentials persisted by the
// authorization flow, which lives outside the engine.
type GoogleAccountStore struct {
	db *sql.DB
}

func NewGoogleAccountStore(db *sql.DB) *GoogleAccountStore {
	return &GoogleAccountStore{db: db}
}

// GetByUserID returns nil when the user has never connected an account.
func (s *GoogleAccountStore) GetByUserID(userID int64) (*model.GoogleAccount, error) {
	var acct model.GoogleAccount
	var expiry sql.NullTime
	err := s.db.QueryRow(
		`SELECT user_id, access_token, refresh_token, token_uri, client_id, client_secret, scopes, token_expiry
		 FROM user_google_accounts WHERE user_id = ?`,
		userID,
	).Scan(&acct.UserID, &acct.AccessToken, &acct.RefreshToken, &acct.TokenURI,
		&acct.ClientID, &acct.ClientSecret, &acct.Scopes, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query google account: %w", err)
	}
	if expiry.Valid {
		acct.TokenExpiry = &expiry.Time
	}
	return &acct, nil
}

// Upsert stores or replaces the user's credentials.
func (s *GoogleAccountStore) Upsert(acct model.GoogleAccount) error {
	_, err := s.db.Exec(
		`INSERT INTO user_google_accounts (user_id, access_token, refresh_token, token_uri, client_id, client_secret, scopes, token_expiry)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE
		 SET access_token = excluded.access_token,
		     refresh_token = excluded.refresh_token,
		     token_uri = excluded.token_uri,
		     client_id = excluded.client_id,
		     client_secret = excluded.client_secret,
		     scopes = excluded.scopes,
		     token_expiry = excluded.token_expiry`,
		acct.UserID, acct.AccessToken, acct.RefreshToken, acct.TokenURI,
		acct.ClientID, acct.ClientSecret, acct.Scopes, acct.TokenExpiry,
	)
	if err != nil {
		return fmt.Errorf("upsert google account: %w", err)
	}
	return nil
}
