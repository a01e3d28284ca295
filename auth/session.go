package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/youssefsiam38/tableadmin/driver"
)

// Session is a browser login.
type Session struct {
	Token         string
	UserID        int64
	ExpiryDate    time.Time
	MaxExpiryDate time.Time
}

// newToken returns 32 random bytes, base64url encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateSession starts a session for the user.
func (s *Service) CreateSession(ctx context.Context, userID int64) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		Token:         token,
		UserID:        userID,
		ExpiryDate:    s.timestamp(now.Add(s.cfg.SessionExpiry)),
		MaxExpiryDate: s.timestamp(now.Add(s.cfg.MaxSessionExpiry)),
	}
	if sess.ExpiryDate.After(sess.MaxExpiryDate) {
		sess.ExpiryDate = sess.MaxExpiryDate
	}

	_, err = s.exec(ctx).Exec(ctx, s.q(`INSERT INTO `+SessionsTable+`
		(token, user_id, expiry_date, max_expiry_date) VALUES ($1, $2, $3, $4)`),
		sess.Token, sess.UserID, sess.ExpiryDate, sess.MaxExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Login authenticates the credentials and starts a session. Users without
// admin rights get ErrForbidden.
func (s *Service) Login(ctx context.Context, username, password string) (*User, *Session, error) {
	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		s.log.Warn("login failed", "username", username)
		return nil, nil, err
	}
	if !u.CanAccessAdmin() {
		s.log.Warn("login without admin rights", "username", username)
		return nil, nil, ErrForbidden
	}

	var sess *Session
	err = driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		var err error
		if sess, err = s.CreateSession(ctx, u.ID); err != nil {
			return err
		}
		now := s.timestamp(s.now())
		if _, err = s.exec(ctx).Exec(ctx, s.q(`UPDATE `+UsersTable+` SET last_login = $1 WHERE id = $2`), now, u.ID); err != nil {
			return fmt.Errorf("update last login: %w", err)
		}
		u.LastLogin = &now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("user logged in", "username", u.Username)
	return u, sess, nil
}

// ValidateSession returns the user owning the session token. Sessions used
// close to expiry are extended by SessionExpiry, never beyond their maximum.
func (s *Service) ValidateSession(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, ErrSessionNotFound
	}

	var (
		sess              = Session{Token: token}
		expiry, maxExpiry any
	)
	row := s.exec(ctx).QueryRow(ctx, s.q(`SELECT user_id, expiry_date, max_expiry_date FROM `+SessionsTable+` WHERE token = $1`), token)
	if err := row.Scan(&sess.UserID, &expiry, &maxExpiry); err != nil {
		if isNoRows(err) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("validate session: %w", err)
	}
	var err error
	if sess.ExpiryDate, err = asTime(expiry); err != nil {
		return nil, nil, err
	}
	if sess.MaxExpiryDate, err = asTime(maxExpiry); err != nil {
		return nil, nil, err
	}

	now := s.now()
	if !now.Before(sess.ExpiryDate) {
		_ = s.DeleteSession(ctx, token)
		return nil, nil, ErrSessionNotFound
	}

	if s.cfg.IncreaseExpiry > 0 && sess.ExpiryDate.Sub(now) < s.cfg.IncreaseExpiry {
		extended := s.timestamp(now.Add(s.cfg.SessionExpiry))
		if extended.After(sess.MaxExpiryDate) {
			extended = sess.MaxExpiryDate
		}
		if extended.After(sess.ExpiryDate) {
			if _, err := s.exec(ctx).Exec(ctx, s.q(`UPDATE `+SessionsTable+` SET expiry_date = $1 WHERE token = $2`), extended, token); err != nil {
				return nil, nil, fmt.Errorf("extend session: %w", err)
			}
			sess.ExpiryDate = extended
		}
	}

	u, err := s.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !u.Active {
		return nil, nil, ErrSessionNotFound
	}
	return u, &sess, nil
}

// DeleteSession ends a session. Unknown tokens are ignored.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.exec(ctx).Exec(ctx, s.q(`DELETE FROM `+SessionsTable+` WHERE token = $1`), token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and returns how
// many were removed.
func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.exec(ctx).Exec(ctx, s.q(`DELETE FROM `+SessionsTable+` WHERE expiry_date <= $1`), s.timestamp(s.now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}
