package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

type AccountStore interface {
	StudentReader
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Student, error)
	CreateWithInstallments(ctx context.Context, s *domain.Student, installments []domain.Installment) error
	SetResetToken(ctx context.Context, studentID, tokenHash string, expiry time.Time) error
	UpdatePassword(ctx context.Context, studentID, passwordHash string) error
	AdminExists(ctx context.Context) (bool, error)
}

type TokenIssuer interface {
	Issue(studentID string, role domain.Role) (string, time.Time, error)
}

type AccountOptions struct {
	FrontendURL   string
	ResetTokenTTL time.Duration
	BcryptCost    int
}

type AccountService struct {
	accounts AccountStore
	tokens   TokenIssuer
	mailer   clients.Mailer
	opts     AccountOptions
	now      func() time.Time
}

func NewAccountService(accounts AccountStore, tokens TokenIssuer, mailer clients.Mailer, opts AccountOptions) *AccountService {
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	return &AccountService{accounts: accounts, tokens: tokens, mailer: mailer, opts: opts, now: time.Now}
}

type AccountSummary struct {
	StudentID string      `json:"studentId"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
}

type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Student   AccountSummary `json:"student"`
}

// Login accepts an email or a phone number as identifier.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	v := &domain.ValidationError{}
	if identifier == "" {
		v.Add("identifier", "identifier is required")
	}
	if password == "" {
		v.Add("password", "password is required")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	var (
		account *domain.Student
		err     error
	)
	if strings.Contains(identifier, "@") {
		account, err = s.accounts.GetByEmail(ctx, identifier)
	} else {
		account, err = s.accounts.GetByPhone(ctx, identifier)
	}
	if errors.Is(err, domain.ErrStudentNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(account.StudentID, account.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: expires,
		Student: AccountSummary{
			StudentID: account.StudentID,
			Name:      account.Name,
			Email:     account.Email,
			Role:      account.Role,
		},
	}, nil
}

type CreateAdminRequest struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// CreateAdmin bootstraps the first admin account. Once an admin exists the
// endpoint is closed.
func (s *AccountService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (string, error) {
	v := &domain.ValidationError{}
	if strings.TrimSpace(req.Name) == "" {
		v.Add("name", "name is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(req.Email)) {
		v.Add("email", "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		v.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if err := v.OrNil(); err != nil {
		return "", err
	}

	exists, err := s.accounts.AdminExists(ctx)
	if err != nil {
		return "", err
	}
	if exists {
		return "", domain.ErrAdminExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	account := &domain.Student{
		StudentID:    newAccountID("ADMIN"),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         domain.RoleAdmin,
		DateJoined:   s.now(),
	}
	if err := s.accounts.CreateWithInstallments(ctx, account, nil); err != nil {
		return "", err
	}
	log.Printf("[AUTH] admin %s created", account.StudentID)
	return account.StudentID, nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword mails a reset link when the email belongs to an account.
// The outcome is the same either way so callers cannot probe for accounts.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.NewValidationError("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return domain.NewValidationError("email", "invalid email format")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrStudentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)
	if err := s.accounts.SetResetToken(ctx, account.StudentID, hashResetToken(token), s.now().Add(s.opts.ResetTokenTTL)); err != nil {
		return err
	}

	resetURL := strings.TrimRight(s.opts.FrontendURL, "/") + "/reset-password/" + token
	msg := clients.MailMessage{
		ToName:  account.Name,
		ToEmail: account.Email,
		Subject: "Password Reset Instructions",
		Text: "We received a request to reset your password. Please use the following link to reset your password: " +
			resetURL + ". If you did not request this, please ignore this email.",
		HTML: `<p>We received a request to reset your password.</p>` +
			`<p>Please click <a href="` + resetURL + `">here</a> to reset your password.</p>` +
			`<p>If you did not request this, please ignore this email.</p>`,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ValidateResetToken reports whether token is a live reset token.
func (s *AccountService) ValidateResetToken(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrInvalidResetToken
	}
	_, err := s.accounts.GetByResetToken(ctx, hashResetToken(token), s.now())
	return err
}

func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return domain.NewValidationError("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if token == "" {
		return domain.ErrInvalidResetToken
	}
	account, err := s.accounts.GetByResetToken(ctx, hashResetToken(token), s.now())
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.StudentID, string(hash)); err != nil {
		return err
	}
	log.Printf("[AUTH] password reset for %s", account.StudentID)
	return nil
}
