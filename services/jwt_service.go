package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"service-marketplace-server/config"
	"service-marketplace-server/models"
	"service-marketplace-server/types"
	"service-marketplace-server/utils"
)

const tokenIssuer = "service-marketplace-server"

// JWTService issues access tokens and manages refresh tokens
type JWTService struct {
	db       *gorm.DB
	cfg      config.JWTConfig
	denylist TokenDenylist
	logger   *slog.Logger
	now      func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(db *gorm.DB, cfg config.JWTConfig, denylist TokenDenylist, logger *slog.Logger) *JWTService {
	if logger == nil {
		logger = slog.Default()
	}
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	return &JWTService{db: db, cfg: cfg, denylist: denylist, logger: logger, now: time.Now}
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// DeviceInfo describes the client a session was opened from
type DeviceInfo struct {
	DeviceID  string
	UserAgent string
	IPAddress string
}

// GenerateTokenPair generates both access and refresh tokens
func (js *JWTService) GenerateTokenPair(ctx context.Context, user *models.User, device DeviceInfo) (*TokenPair, error) {
	accessToken, expiresIn, err := js.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := js.generateRefreshToken(ctx, user.ID, device)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    "Bearer",
	}, nil
}

func (js *JWTService) generateAccessToken(user *models.User) (string, int64, error) {
	now := js.now()
	ttl := js.cfg.AccessTTL()
	claims := &types.Claims{
		UserID:  user.ID,
		IsStaff: user.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(js.cfg.Secret))
	if err != nil {
		return "", 0, fmt.Errorf("sign access token: %w", err)
	}
	return tokenString, int64(ttl.Seconds()), nil
}

func (js *JWTService) generateRefreshToken(ctx context.Context, userID uint, device DeviceInfo) (string, error) {
	tokenString, err := utils.GenerateSecureToken(32)
	if err != nil {
		return "", err
	}

	refreshToken := &models.RefreshToken{
		Token:     tokenString,
		UserID:    userID,
		ExpiresAt: js.now().Add(js.cfg.RefreshTTL()),
		DeviceID:  device.DeviceID,
		UserAgent: device.UserAgent,
		IPAddress: device.IPAddress,
	}
	if err := js.db.WithContext(ctx).Create(refreshToken).Error; err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return tokenString, nil
}

// ParseAccessToken checks signature, expiry and the logout denylist
func (js *JWTService) ParseAccessToken(ctx context.Context, tokenString string) (*types.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &types.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(js.cfg.Secret), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(js.now))
	if err != nil {
		return nil, unauthorizedErr("token is invalid or expired")
	}

	claims, ok := token.Claims.(*types.Claims)
	if !ok || !token.Valid {
		return nil, unauthorizedErr("token claims are invalid")
	}

	denied, err := js.denylist.IsDenied(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if denied {
		return nil, unauthorizedErr("token has been revoked")
	}
	return claims, nil
}

// Authenticate resolves a bearer token to an active user
func (js *JWTService) Authenticate(ctx context.Context, tokenString string) (*models.User, *types.Claims, error) {
	claims, err := js.ParseAccessToken(ctx, tokenString)
	if err != nil {
		return nil, nil, err
	}
	user, err := first[models.User](js.db.WithContext(ctx).Where("id = ?", claims.UserID))
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, unauthorizedErr("user associated with token not found")
	}
	if !user.IsActive {
		return nil, nil, unauthorizedErr("user account is deactivated")
	}
	return user, claims, nil
}

// RefreshAccessToken mints a new access token and keeps the refresh token
func (js *JWTService) RefreshAccessToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	db := js.db.WithContext(ctx)
	rt, err := first[models.RefreshToken](db.Where("token = ?", refreshTokenString))
	if err != nil {
		return nil, err
	}
	if rt == nil || !rt.Usable(js.now()) {
		return nil, unauthorizedErr("refresh token is invalid or expired")
	}

	user, err := first[models.User](db.Where("id = ?", rt.UserID))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, unauthorizedErr("user account is not available")
	}

	accessToken, expiresIn, err := js.generateAccessToken(user)
	if err != nil {
		return nil, err
	}
	if err := db.Model(rt).Update("updated_at", js.now()).Error; err != nil {
		return nil, fmt.Errorf("touch refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenString,
		ExpiresIn:    expiresIn,
		TokenType:    "Bearer",
	}, nil
}

// RevokeRefreshToken revokes one of userID's refresh tokens. Unknown tokens are ignored.
func (js *JWTService) RevokeRefreshToken(ctx context.Context, userID uint, tokenString string) error {
	if tokenString == "" {
		return nil
	}
	res := js.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ? AND user_id = ?", tokenString, userID).
		Update("is_revoked", true)
	if res.Error != nil {
		return fmt.Errorf("revoke refresh token: %w", res.Error)
	}
	return nil
}

// RevokeAccessToken denylists the token id until the token would have expired anyway
func (js *JWTService) RevokeAccessToken(ctx context.Context, claims *types.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(js.now())
	if ttl <= 0 {
		return nil
	}
	if err := js.denylist.Deny(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("deny access token: %w", err)
	}
	return nil
}

// RevokeAllUserTokens revokes all refresh tokens for a user
func (js *JWTService) RevokeAllUserTokens(ctx context.Context, tx *gorm.DB, userID uint) error {
	if tx == nil {
		tx = js.db.WithContext(ctx)
	}
	if err := tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true).Error; err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	js.logger.Info("all refresh tokens revoked", "user_id", userID)
	return nil
}

// CleanupExpiredTokens removes refresh tokens that can never be used again
// and reset tokens that are spent or expired.
func (js *JWTService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	now := js.now()
	db := js.db.WithContext(ctx)

	res := db.Where("expires_at < ? OR is_revoked = ?", now, true).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", res.Error)
	}
	removed := res.RowsAffected

	res = db.Where("expires_at < ? OR used_at IS NOT NULL", now).Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return removed, fmt.Errorf("delete password reset tokens: %w", res.Error)
	}
	removed += res.RowsAffected

	if mem, ok := js.denylist.(*MemoryDenylist); ok {
		mem.Purge()
	}
	return removed, nil
}
