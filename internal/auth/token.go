package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/openfoi/foiportal/internal/models"
)

const (
	// TokenPrefix is the prefix for all portal operator tokens.
	TokenPrefix = "foi_"
	// TokenLength is the expected length of the hex portion of a token.
	TokenLength = 64 // 32 bytes = 64 hex chars
)

// OperatorCredential maps a bcrypt token hash to a staff email.
type OperatorCredential struct {
	Email     string
	TokenHash string
}

// UserStore defines the interface for resolving token owners.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// TokenValidator validates operator tokens against the configured
// credential list and resolves the owning staff account.
type TokenValidator struct {
	credentials []OperatorCredential
	store       UserStore
	logger      zerolog.Logger
}

// NewTokenValidator creates a new operator token validator.
func NewTokenValidator(credentials []OperatorCredential, store UserStore, logger zerolog.Logger) *TokenValidator {
	return &TokenValidator{
		credentials: credentials,
		store:       store,
		logger:      logger.With().Str("component", "token_validator").Logger(),
	}
}

// ValidateToken checks the token against every configured credential
// and returns the associated staff user. Returns nil for an invalid
// token, an unknown account or an account without staff role.
func (v *TokenValidator) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	if !IsValidTokenFormat(token) {
		v.logger.Debug().Msg("invalid token format")
		return nil, nil
	}

	for _, cred := range v.credentials {
		if bcrypt.CompareHashAndPassword([]byte(cred.TokenHash), []byte(token)) != nil {
			continue
		}
		user, err := v.store.GetUserByEmail(ctx, cred.Email)
		if err != nil {
			v.logger.Warn().Str("email", cred.Email).Msg("token credential points at unknown account")
			return nil, nil
		}
		if !user.IsStaff() {
			v.logger.Warn().Str("email", cred.Email).Msg("token credential points at non-staff account")
			return nil, nil
		}
		v.logger.Debug().Str("user_id", user.ID.String()).Msg("operator token validated")
		return user, nil
	}
	return nil, nil
}

// GenerateToken mints a new operator token and its bcrypt hash for
// the config file.
func GenerateToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = TokenPrefix + hex.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}
	return token, string(hashed), nil
}

// IsValidTokenFormat checks if the token has the correct format.
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(token, TokenPrefix)
	if len(hexPart) != TokenLength {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns empty string if the header is not a valid Bearer token.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
