package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/bugspotter/demo-platform/internal/domain"
	"github.com/bugspotter/demo-platform/internal/port/store"
)

// ErrInvalidCredentials is returned for any login failure. The cause is
// deliberately not distinguished to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrTOTPRequired is returned when the account has confirmed two-factor
// auth and the login request carried no code.
var ErrTOTPRequired = errors.New("totp code required")

// adminAccount is the stored admin record. Emails and tokens are hashed
// before use as store keys, which only allow a restricted character set.
type adminAccount struct {
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	TOTPSecret    string    `json:"totp_secret,omitempty"`
	TOTPConfirmed bool      `json:"totp_confirmed"`
	CreatedAt     time.Time `json:"created_at"`
}

// adminSession is an issued opaque token's server-side record.
type adminSession struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService manages admin accounts and opaque session tokens.
type AuthService struct {
	store      store.KV
	tokenTTL   time.Duration
	totpIssuer string
	now        func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(kv store.KV, tokenTTL time.Duration, totpIssuer string) *AuthService {
	return &AuthService{
		store:      kv,
		tokenTTL:   tokenTTL,
		totpIssuer: totpIssuer,
		now:        time.Now,
	}
}

// SetClock overrides the service clock. Test helper.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateAdmin creates an admin account with a bcrypt-hashed password.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) error {
	if email == "" || len(password) < 8 {
		return fmt.Errorf("%w: email and a password of at least 8 characters are required", domain.ErrValidation)
	}
	if _, err := s.account(ctx, email); err == nil {
		return fmt.Errorf("%w: account %s already exists", domain.ErrValidation, email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	acct := adminAccount{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.putAccount(ctx, acct); err != nil {
		return err
	}
	slog.Info("admin account created", "email", email)
	return nil
}

// SetPassword replaces an admin's password.
func (s *AuthService) SetPassword(ctx context.Context, email, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}
	acct, err := s.account(ctx, email)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	acct.PasswordHash = string(hash)
	return s.putAccount(ctx, acct)
}

// Login verifies credentials and issues an opaque session token. Accounts
// with confirmed two-factor auth must supply a valid TOTP code.
func (s *AuthService) Login(ctx context.Context, email, password, totpCode string) (string, error) {
	acct, err := s.account(ctx, email)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if acct.TOTPConfirmed {
		if totpCode == "" {
			return "", ErrTOTPRequired
		}
		if !totp.Validate(totpCode, acct.TOTPSecret) {
			return "", ErrInvalidCredentials
		}
	}

	token := newToken()
	sess := adminSession{Email: email, ExpiresAt: s.now().Add(s.tokenTTL)}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal admin session: %w", err)
	}
	if err := s.store.Put(ctx, store.PrefixAdminSession+hashKey(token), data, s.tokenTTL); err != nil {
		return "", err
	}
	slog.Info("admin login", "email", email)
	return token, nil
}

// ValidateSessionToken returns the admin email behind a live token.
// Expired records found before the store reaps them are deleted on read.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) (string, error) {
	key := store.PrefixAdminSession + hashKey(token)
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("admin session: %w", domain.ErrNotFound)
	}
	var sess adminSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return "", fmt.Errorf("unmarshal admin session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		_ = s.store.Delete(ctx, key)
		return "", fmt.Errorf("admin session expired: %w", domain.ErrNotFound)
	}
	return sess.Email, nil
}

// Logout revokes a session token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.store.Delete(ctx, store.PrefixAdminSession+hashKey(token))
}

// SetupTOTP generates a new two-factor secret for the account and returns
// the otpauth:// provisioning URL. The secret stays unconfirmed, and is not
// required at login, until ConfirmTOTP succeeds with a matching code.
func (s *AuthService) SetupTOTP(ctx context.Context, email string) (string, error) {
	acct, err := s.account(ctx, email)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.totpIssuer,
		AccountName: email,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	acct.TOTPSecret = key.Secret()
	acct.TOTPConfirmed = false
	if err := s.putAccount(ctx, acct); err != nil {
		return "", err
	}
	return key.URL(), nil
}

// ConfirmTOTP proves the admin's authenticator works and enables the
// two-factor requirement on future logins.
func (s *AuthService) ConfirmTOTP(ctx context.Context, email, code string) error {
	acct, err := s.account(ctx, email)
	if err != nil {
		return err
	}
	if acct.TOTPSecret == "" {
		return fmt.Errorf("%w: no totp secret set up", domain.ErrValidation)
	}
	if !totp.Validate(code, acct.TOTPSecret) {
		return ErrInvalidCredentials
	}
	acct.TOTPConfirmed = true
	if err := s.putAccount(ctx, acct); err != nil {
		return err
	}
	slog.Info("totp confirmed", "email", email)
	return nil
}

func (s *AuthService) account(ctx context.Context, email string) (adminAccount, error) {
	var acct adminAccount
	data, found, err := s.store.Get(ctx, store.PrefixAdminUser+hashKey(email))
	if err != nil {
		return acct, err
	}
	if !found {
		return acct, fmt.Errorf("admin %s: %w", email, domain.ErrNotFound)
	}
	if err := json.Unmarshal(data, &acct); err != nil {
		return acct, fmt.Errorf("unmarshal admin account: %w", err)
	}
	return acct, nil
}

func (s *AuthService) putAccount(ctx context.Context, acct adminAccount) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal admin account: %w", err)
	}
	return s.store.Put(ctx, store.PrefixAdminUser+hashKey(acct.Email), data, 0)
}

// hashKey turns free-form input (emails, tokens) into a store-safe key
// suffix. Hashing tokens also keeps raw credentials out of the store.
func hashKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func newToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
