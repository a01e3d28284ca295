package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/youssefsiam38/tableadmin/internal/testutil"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	cfg.BcryptCost = bcrypt.MinCost
	s := New(db.Driver, cfg, nil)
	if err := Migrate(context.Background(), db.Driver); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	s.now = func() time.Time { return t0 }
	return s
}

func createAdmin(t *testing.T, s *Service, username string) *User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), User{Username: username, Active: true, Admin: true}, "secret-password")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func TestMigrate_Idempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db.Driver); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i, err)
		}
	}
}

func TestCreateUser(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	u := createAdmin(t, s, "alice")
	if u.ID == 0 {
		t.Error("ID should be assigned")
	}
	if !u.Active || !u.Admin || u.Superuser {
		t.Errorf("flags = active:%v admin:%v superuser:%v", u.Active, u.Admin, u.Superuser)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %d, want %d", got.ID, u.ID)
	}

	if _, err := s.CreateUser(ctx, User{Username: "alice"}, "another-password"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrUserExists", err)
	}
	if _, err := s.CreateUser(ctx, User{Username: "bob"}, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("short password error = %v, want ErrWeakPassword", err)
	}
	if _, err := s.GetUser(ctx, 999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(999) error = %v, want ErrUserNotFound", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	u := createAdmin(t, s, "alice")

	if _, err := s.Authenticate(ctx, "alice", "secret-password"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "nope-nope"},
		{"unknown user", "mallory", "secret-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Authenticate(ctx, tt.username, tt.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}

	if err := s.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if _, err := s.Authenticate(ctx, "alice", "secret-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticate_UnknownUserHashCost(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db.Driver); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	cost := bcrypt.MinCost + 1
	s := New(db.Driver, Config{BcryptCost: cost}, nil)
	createAdmin(t, s, "alice")

	var stored string
	if err := db.DB.QueryRowContext(ctx, `SELECT password FROM `+UsersTable+` WHERE username = 'alice'`).Scan(&stored); err != nil {
		t.Fatalf("select password: %v", err)
	}
	if got, err := bcrypt.Cost([]byte(stored)); err != nil || got != cost {
		t.Errorf("stored hash cost = %d, %v, want %d", got, err, cost)
	}
	if _, err := s.Authenticate(ctx, "mallory", "secret-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Authenticate(unknown) error = %v, want ErrInvalidCredentials", err)
	}
	if got, err := bcrypt.Cost(s.dummyHash()); err != nil || got != cost {
		t.Errorf("unknown user hash cost = %d, %v, want %d", got, err, cost)
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	createAdmin(t, s, "alice")

	_, sess, err := s.Login(ctx, "alice", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	u, _ := s.GetUserByUsername(ctx, "alice")
	if err := s.ChangePassword(ctx, u.ID, "wrong-current", "new-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ChangePassword() with wrong current error = %v, want ErrInvalidCredentials", err)
	}
	if err := s.ChangePassword(ctx, u.ID, "secret-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, _, err := s.ValidateSession(ctx, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old session error = %v, want ErrSessionNotFound", err)
	}
	if _, err := s.Authenticate(ctx, "alice", "new-password"); err != nil {
		t.Errorf("Authenticate() with new password error = %v", err)
	}
	if err := s.SetPassword(ctx, 999, "new-password"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetPassword(999) error = %v, want ErrUserNotFound", err)
	}
}

func TestLogin_RequiresAdmin(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := s.CreateUser(ctx, User{Username: "viewer", Active: true}, "secret-password"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, _, err := s.Login(ctx, "viewer", "secret-password"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Login() error = %v, want ErrForbidden", err)
	}
}

func TestLogin_SetsLastLogin(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	createAdmin(t, s, "alice")

	u, sess, err := s.Login(ctx, "alice", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !sess.ExpiryDate.Equal(t0.Add(DefaultSessionExpiry)) {
		t.Errorf("ExpiryDate = %v, want %v", sess.ExpiryDate, t0.Add(DefaultSessionExpiry))
	}

	stored, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if stored.LastLogin == nil || !stored.LastLogin.Equal(t0) {
		t.Errorf("LastLogin = %v, want %v", stored.LastLogin, t0)
	}
}

func TestValidateSession_SlidingExpiry(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	createAdmin(t, s, "alice")

	_, sess, err := s.Login(ctx, "alice", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// Plenty of time left: unchanged.
	s.now = func() time.Time { return t0.Add(10 * time.Minute) }
	_, got, err := s.ValidateSession(ctx, sess.Token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if !got.ExpiryDate.Equal(t0.Add(time.Hour)) {
		t.Errorf("ExpiryDate = %v, want %v", got.ExpiryDate, t0.Add(time.Hour))
	}

	// Close to expiry: extended.
	s.now = func() time.Time { return t0.Add(50 * time.Minute) }
	_, got, err = s.ValidateSession(ctx, sess.Token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	want := t0.Add(110 * time.Minute)
	if !got.ExpiryDate.Equal(want) {
		t.Errorf("ExpiryDate = %v, want %v", got.ExpiryDate, want)
	}

	// Past expiry: gone.
	s.now = func() time.Time { return t0.Add(3 * time.Hour) }
	if _, _, err := s.ValidateSession(ctx, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired ValidateSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestValidateSession_MaxExpiryCap(t *testing.T) {
	s := newTestService(t, Config{MaxSessionExpiry: 90 * time.Minute})
	ctx := context.Background()
	createAdmin(t, s, "alice")

	_, sess, err := s.Login(ctx, "alice", "secret-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	s.now = func() time.Time { return t0.Add(50 * time.Minute) }
	_, got, err := s.ValidateSession(ctx, sess.Token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if want := t0.Add(90 * time.Minute); !got.ExpiryDate.Equal(want) {
		t.Errorf("ExpiryDate = %v, want %v", got.ExpiryDate, want)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	u := createAdmin(t, s, "alice")

	if _, err := s.CreateSession(ctx, u.ID); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	s.now = func() time.Time { return t0.Add(30 * time.Minute) }
	fresh, err := s.CreateSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	s.now = func() time.Time { return t0.Add(70 * time.Minute) }
	n, err := s.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, _, err := s.ValidateSession(ctx, fresh.Token); err != nil {
		t.Errorf("fresh session error = %v", err)
	}
}
