package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong handle or password.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("identity: password must be at least 8 characters")
	// ErrInvalidRole signals a role outside the custody chain.
	ErrInvalidRole = errors.New("identity: invalid role")
	// ErrUnrated signals that the identity has received no ratings yet.
	ErrUnrated = errors.New("identity: unrated")
)

// Service handles registration, sessions, and registry reads.
type Service struct {
	repo           Repository
	jwtSecret      []byte
	openingBalance int64
}

// LoginResult bundles the token and identity returned after a successful login.
type LoginResult struct {
	Token    string
	Identity Identity
}

// NewService creates a new identity service. openingBalance funds each new
// registration so buyers can place escrowed purchases.
func NewService(repo Repository, jwtSecret string, openingBalance int64) *Service {
	return &Service{
		repo:           repo,
		jwtSecret:      []byte(jwtSecret),
		openingBalance: openingBalance,
	}
}

// Register creates a new chain participant.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Identity, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	handle := strings.TrimSpace(req.Handle)
	if handle == "" {
		return nil, fmt.Errorf("identity: handle is required")
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}

	ident, err := s.repo.Create(ctx, CreateParams{
		Handle:       handle,
		Role:         req.Role,
		PasswordHash: string(passwordHash),
		Balance:      s.openingBalance,
	})
	if err != nil {
		return nil, err
	}

	return &ident, nil
}

// Login authenticates an identity and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	ident, err := s.repo.GetByHandle(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, ErrUnknownHandle) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(ident.ID, ident.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("identity: generate token: %w", err)
	}

	return LoginResult{Token: token, Identity: ident}, nil
}

// ResolveHandle maps a human-readable handle to its identity record.
func (s *Service) ResolveHandle(ctx context.Context, handle string) (*Identity, error) {
	ident, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// Get retrieves an identity by id.
func (s *Service) Get(ctx context.Context, id string) (*Identity, error) {
	ident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// AverageRating returns the running average and count of scores received by
// the identity. It is computed from the accumulator on every read so it is
// always consistent with the latest increment. Returns ErrUnrated when the
// identity has never been scored.
func (s *Service) AverageRating(ctx context.Context, id string) (float64, int64, error) {
	ident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if ident.RatingCount == 0 {
		return 0, 0, ErrUnrated
	}
	return float64(ident.RatingSum) / float64(ident.RatingCount), ident.RatingCount, nil
}

// VerifyToken validates a JWT token and returns the identity id and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("identity: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		identityID, ok := claims["identity_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("identity: invalid identity_id in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("identity: invalid role in token")
		}
		role := Role(roleStr)
		if !role.Valid() {
			return "", "", fmt.Errorf("identity: invalid role %q in token", roleStr)
		}
		return identityID, role, nil
	}

	return "", "", fmt.Errorf("identity: invalid token")
}

func (s *Service) generateToken(identityID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"identity_id": identityID,
		"role":        role,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
		"iat":         time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
