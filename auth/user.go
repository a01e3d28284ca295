package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/youssefsiam38/tableadmin/driver"
)

// MinPasswordLength is the shortest accepted password. bcrypt ignores
// anything past 72 bytes so longer passwords are rejected.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// User is an admin user.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Active    bool       `json:"active"`
	Admin     bool       `json:"admin"`
	Superuser bool       `json:"superuser"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// CanAccessAdmin reports whether the user may use the admin.
func (u *User) CanAccessAdmin() bool {
	return u != nil && u.Active && (u.Admin || u.Superuser)
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

const userColumns = "id, username, email, first_name, last_name, active, admin, superuser, last_login"

func scanUser(row driver.Row) (*User, error) {
	var (
		u         User
		lastLogin any
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.Active, &u.Admin, &u.Superuser, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin != nil {
		t, err := asTime(lastLogin)
		if err != nil {
			return nil, err
		}
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CreateUser inserts a user with the given password. ID and LastLogin of u
// are ignored.
func (s *Service) CreateUser(ctx context.Context, u User, password string) (*User, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	var created *User
	err = driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		if _, err := s.GetUserByUsername(ctx, u.Username); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}

		row := s.exec(ctx).QueryRow(ctx, s.q(`INSERT INTO `+UsersTable+`
			(username, password, email, first_name, last_name, active, admin, superuser)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+userColumns),
			u.Username, hash, u.Email, u.FirstName, u.LastName, u.Active, u.Admin, u.Superuser)
		created, err = scanUser(row)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created", "username", created.Username, "id", created.ID)
	return created, nil
}

// GetUser returns the user with the given id.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.exec(ctx).QueryRow(ctx, s.q(`SELECT `+userColumns+` FROM `+UsersTable+` WHERE id = $1`), id)
	u, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the user with the given username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.exec(ctx).QueryRow(ctx, s.q(`SELECT `+userColumns+` FROM `+UsersTable+` WHERE username = $1`), username)
	u, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.exec(ctx).Query(ctx, `SELECT `+userColumns+` FROM `+UsersTable+` ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, password string) error {
	var hash string
	row := s.exec(ctx).QueryRow(ctx, s.q(`SELECT password FROM `+UsersTable+` WHERE id = $1`), userID)
	if err := row.Scan(&hash); err != nil {
		if isNoRows(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("change password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	return s.SetPassword(ctx, userID, password)
}

// SetPassword sets a new password and signs the user out everywhere.
func (s *Service) SetPassword(ctx context.Context, userID int64, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	return driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		n, err := s.exec(ctx).Exec(ctx, s.q(`UPDATE `+UsersTable+` SET password = $1 WHERE id = $2`), hash, userID)
		if err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		if n == 0 {
			return ErrUserNotFound
		}
		_, err = s.exec(ctx).Exec(ctx, s.q(`DELETE FROM `+SessionsTable+` WHERE user_id = $1`), userID)
		return err
	})
}

// SetActive enables or disables a user. Disabling removes the user's sessions.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) error {
	return driver.InTx(ctx, s.conn, func(ctx context.Context) error {
		n, err := s.exec(ctx).Exec(ctx, s.q(`UPDATE `+UsersTable+` SET active = $1 WHERE id = $2`), active, userID)
		if err != nil {
			return fmt.Errorf("set active: %w", err)
		}
		if n == 0 {
			return ErrUserNotFound
		}
		if !active {
			_, err = s.exec(ctx).Exec(ctx, s.q(`DELETE FROM `+SessionsTable+` WHERE user_id = $1`), userID)
		}
		return err
	})
}

// Authenticate checks a username and password. Inactive users fail with
// ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var hash string
	row := s.exec(ctx).QueryRow(ctx, s.q(`SELECT password FROM `+UsersTable+` WHERE username = $1`), username)
	if err := row.Scan(&hash); err != nil {
		if !isNoRows(err) {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
