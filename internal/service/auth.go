package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/repository"
	"github.com/survivorsoul/soulsongs/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials    = errors.New("incorrect email or password")
	ErrEmailAlreadyExists    = errors.New("email already registered")
	ErrInactiveUser          = errors.New("account is inactive")
	ErrInvalidToken          = errors.New("could not validate credentials")
	ErrGoogleEmailUnverified = errors.New("google account email is not verified")
)

// ValidationError is rejected client input. Its message is safe to return.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Claims are the JWT claims issued on login. Subject holds the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// GoogleProfile is the subset of Google's userinfo response used for sign-in.
type GoogleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type AuthService struct {
	userRepository repository.UserRepository
	emailService   *EmailService
	jwtSecret      []byte
	signingMethod  jwt.SigningMethod
	jwtExpiry      time.Duration
}

// NewAuthService accepts HS256, HS384 or HS512 and falls back to HS256 for anything else.
func NewAuthService(
	userRepository repository.UserRepository,
	emailService *EmailService,
	jwtSecret string,
	jwtAlgorithm string,
	jwtExpiry time.Duration,
) *AuthService {
	method, ok := jwt.GetSigningMethod(jwtAlgorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		slog.Warn("unsupported JWT algorithm, using HS256", "algorithm", jwtAlgorithm)
		method = jwt.SigningMethodHS256
	}

	return &AuthService{
		userRepository: userRepository,
		emailService:   emailService,
		jwtSecret:      []byte(jwtSecret),
		signingMethod:  method,
		jwtExpiry:      jwtExpiry,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*model.User, error) {
	email = validation.NormalizeEmail(email)
	fullName = strings.TrimSpace(fullName)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, &ValidationError{Field: "email", Err: err}
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, &ValidationError{Field: "password", Err: err}
	}
	err = validation.ValidateName(fullName)
	if err != nil {
		return nil, &ValidationError{Field: "full_name", Err: err}
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:          email,
		HashedPassword: &hash,
		FullName:       fullName,
		Role:           model.RoleUser,
		IsActive:       true,
	}

	err = s.userRepository.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, ErrEmailAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID)
	s.sendWelcome(ctx, user)

	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = validation.NormalizeEmail(email)

	user, err := s.userRepository.ByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// OAuth-only accounts have no password to compare against.
	if !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}

	err = s.ComparePassword(password, *user.HashedPassword)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	return user, nil
}

// AuthenticateGoogle signs in by Google id, links an existing account by verified email,
// or creates an OAuth-only account.
func (s *AuthService) AuthenticateGoogle(ctx context.Context, profile GoogleProfile) (*model.User, error) {
	if profile.ID == "" {
		return nil, &ValidationError{Field: "google_id", Err: errors.New("google profile has no id")}
	}

	user, err := s.userRepository.ByGoogleID(ctx, profile.ID)
	if err == nil {
		if !user.IsActive {
			return nil, ErrInactiveUser
		}
		slog.Info("user authenticated via google", "user_id", user.ID)
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}

	email := validation.NormalizeEmail(profile.Email)
	err = validation.ValidateEmail(email)
	if err != nil {
		return nil, &ValidationError{Field: "email", Err: err}
	}

	user, err = s.userRepository.ByEmail(ctx, email)
	switch {
	case err == nil:
		return s.linkGoogle(ctx, user, profile)
	case errors.Is(err, repository.ErrUserNotFound):
		return s.createGoogleUser(ctx, email, profile)
	default:
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}
}

func (s *AuthService) linkGoogle(ctx context.Context, user *model.User, profile GoogleProfile) (*model.User, error) {
	// Linking on an unverified address would let anyone claim the account.
	if !profile.VerifiedEmail {
		return nil, ErrGoogleEmailUnverified
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	user.GoogleID = &profile.ID
	user.IsVerified = true
	if user.ProfileImage == nil && profile.Picture != "" {
		user.ProfileImage = &profile.Picture
	}

	err := s.userRepository.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to link google account: %w", err)
	}

	slog.Info("google account linked", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) createGoogleUser(ctx context.Context, email string, profile GoogleProfile) (*model.User, error) {
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user := &model.User{
		Email:      email,
		FullName:   name,
		Role:       model.RoleUser,
		GoogleID:   &profile.ID,
		IsActive:   true,
		IsVerified: profile.VerifiedEmail,
	}
	if profile.Picture != "" {
		user.ProfileImage = &profile.Picture
	}

	err := s.userRepository.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new google user created", "user_id", user.ID)
	s.sendWelcome(ctx, user)

	return user, nil
}

func (s *AuthService) sendWelcome(ctx context.Context, user *model.User) {
	if s.emailService == nil {
		return
	}
	err := s.emailService.SendWelcomeEmail(ctx, user.Email, user.DisplayName())
	if err != nil {
		slog.Warn("failed to send welcome email", "error", err, "user_id", user.ID)
	}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateJWT returns a signed access token and its expiry.
func (s *AuthService) GenerateJWT(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.jwtExpiry)

	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(s.signingMethod, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, expiresAt, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{s.signingMethod.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// UserFromToken verifies the token and loads its active user.
func (s *AuthService) UserFromToken(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.VerifyJWT(tokenString)
	if err != nil {
		return nil, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	user, err := s.userRepository.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	return user, nil
}
