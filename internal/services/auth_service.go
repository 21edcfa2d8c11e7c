package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is an account that can edit checklists.
type User struct {
	ID          string
	Email       string
	PassHash    []byte
	Role        Role
	ClientScope string
	CreatedAt   time.Time
}

type AuthStore interface {
	FindUserByEmail(email string) (*User, error)
	AddUser(u *User) error
}

type TokenSigner func(uid string, role Role, clientScope, email string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token       string
	UserID      string
	Role        Role
	ClientScope string
}

func NewAuthService(store AuthStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  30 * 24 * time.Hour,
	}
}

// Register creates an account. Client accounts are bound to a client
// scope; consultant accounts may only be minted by a consultant.
func (s *AuthService) Register(actor Actor, email, password, roleName, clientScope string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	role := RoleClient
	if roleName != "" {
		parsed, err := ParseRole(roleName)
		if err != nil {
			return nil, err
		}
		role = parsed
	}
	if role == RoleConsultant && actor.Role != RoleConsultant {
		return nil, NewForbiddenError("only consultants may create consultant accounts")
	}
	if role == RoleClient && strings.TrimSpace(clientScope) == "" {
		return nil, NewInvalidError("client accounts require a client scope")
	}
	existing, err := s.store.FindUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	userID := s.idGen("u", 7)
	if err := s.store.AddUser(&User{
		ID:          userID,
		Email:       email,
		PassHash:    hash,
		Role:        role,
		ClientScope: clientScope,
		CreatedAt:   s.now(),
	}); err != nil {
		return nil, err
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(userID, role, clientScope, email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: userID, Role: role, ClientScope: clientScope}, nil
}

func (s *AuthService) Login(email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Role, u.ClientScope, u.Email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Role: u.Role, ClientScope: u.ClientScope}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
