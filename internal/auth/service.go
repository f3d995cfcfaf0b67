package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/processor"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

const authCodeTTL = 10 * time.Minute

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrInvalidCode = errors.New("invalid or expired code")

// TokenPair is the access/refresh pair returned by every login flow.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Service implements the two C11 login flows against the User/AuthCode/
// AdminCredential/RefreshToken tables.
type Service struct {
	jwt         *JWTService
	users       *repository.UserRepository
	authCodes   *repository.AuthCodeRepository
	admins      *repository.AdminCredentialRepository
	refreshRepo *repository.RefreshTokenRepository
	bridge      *bridge.Client
}

func NewService(
	jwt *JWTService,
	users *repository.UserRepository,
	authCodes *repository.AuthCodeRepository,
	admins *repository.AdminCredentialRepository,
	refreshRepo *repository.RefreshTokenRepository,
	bridgeClient *bridge.Client,
) *Service {
	return &Service{
		jwt:         jwt,
		users:       users,
		authCodes:   authCodes,
		admins:      admins,
		refreshRepo: refreshRepo,
		bridge:      bridgeClient,
	}
}

// RequestCode generates and stores a 6-digit login code for the user
// matching phone (creating the user if this is their first contact), then
// delivers it to their own WhatsApp number via the Bridge.
func (s *Service) RequestCode(ctx context.Context, phone string) error {
	user, err := s.users.GetOrCreateByPhone(ctx, phone, defaultDisplayName(phone))
	if err != nil {
		return fmt.Errorf("resolve user for login code: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate login code: %w", err)
	}

	if _, err := s.authCodes.Create(ctx, user.ID, code, authCodeTTL); err != nil {
		return fmt.Errorf("store login code: %w", err)
	}

	body := fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(authCodeTTL.Minutes()))
	if _, err := s.bridge.SendMessage(ctx, processor.SystemSessionID, user.JID(), body, ""); err != nil {
		return fmt.Errorf("deliver login code: %w", err)
	}
	return nil
}

// VerifyCode consumes a valid login code for phone and issues a token pair.
func (s *Service) VerifyCode(ctx context.Context, phone, code string) (*TokenPair, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup user for code verify: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCode
	}

	ok, err := s.authCodes.ConsumeValid(ctx, user.ID, code)
	if err != nil {
		return nil, fmt.Errorf("consume login code: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	return s.issueTokens(ctx, user.ID, user.IsAdmin)
}

// AdminLogin verifies phone+password against AdminCredential and issues a
// token pair carrying the is_admin claim.
func (s *Service) AdminLogin(ctx context.Context, phone, password string) (*TokenPair, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup user for admin login: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	cred, err := s.admins.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup admin credential: %w", err)
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.admins.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("touch admin last login: %w", err)
	}

	return s.issueTokens(ctx, user.ID, true)
}

// RefreshTokens validates a refresh token and issues a fresh access token,
// rotating the refresh token (revoking the old one).
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	stored, err := s.refreshRepo.GetValid(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if stored == nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for refresh: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.refreshRepo.Revoke(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("revoke old refresh token: %w", err)
	}

	return s.issueTokens(ctx, user.ID, user.IsAdmin)
}

func (s *Service) issueTokens(ctx context.Context, userID uint, isAdmin bool) (*TokenPair, error) {
	access, expiresIn, err := s.jwt.GenerateAccessToken(userID, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refresh, expiresAt, err := s.jwt.GenerateRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.refreshRepo.Create(ctx, userID, refresh, expiresAt); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: expiresIn}, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func defaultDisplayName(phone string) string {
	if len(phone) <= 4 {
		return "User " + phone
	}
	return "User " + phone[len(phone)-4:]
}
