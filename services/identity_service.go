package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"service-marketplace-server/metrics"
	"service-marketplace-server/models"
	"service-marketplace-server/types"
	"service-marketplace-server/utils"
)

const (
	maxRoleReasonLength = 500
	passwordResetTTL    = time.Hour
)

// ResetNotifier delivers password reset tokens to their owner
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

// LogResetNotifier writes the reset token to the log. Meant for development.
type LogResetNotifier struct {
	Logger *slog.Logger
}

func (n LogResetNotifier) SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset requested",
		"user_id", user.ID, "email", user.Email, "token", token, "expires_at", expiresAt)
	return nil
}

// IdentityService covers accounts, profiles and admin role changes
type IdentityService struct {
	db       *gorm.DB
	tokens   *JWTService
	notifier ResetNotifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewIdentityService(db *gorm.DB, tokens *JWTService, notifier ResetNotifier, logger *slog.Logger, m *metrics.Metrics) *IdentityService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogResetNotifier{Logger: logger}
	}
	return &IdentityService{db: db, tokens: tokens, notifier: notifier, logger: logger, metrics: m, now: time.Now}
}

type RegisterInput struct {
	Email           string
	FirstName       string
	LastName        string
	Password        string
	PasswordConfirm string
}

// Register creates a common account
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email, ok := utils.NormalizeEmail(in.Email)
	if !ok {
		return nil, validationErr("email", "enter a valid email address")
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" {
		return nil, validationErr("first_name", "first name is required")
	}
	if lastName == "" {
		return nil, validationErr("last_name", "last name is required")
	}
	if in.Password != in.PasswordConfirm {
		return nil, validationErr("password_confirm", "passwords do not match")
	}
	if err := utils.ValidatePasswordStrength(in.Password); err != nil {
		return nil, validationErr("password", err.Error())
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Username:     utils.UsernameFromEmail(email),
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		Role:         models.RoleCommon,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, conflictErr("an account with this email already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials and opens a session
func (s *IdentityService) Login(ctx context.Context, email, password string, device DeviceInfo) (*models.User, *TokenPair, error) {
	normalized, ok := utils.NormalizeEmail(email)
	if !ok {
		return nil, nil, unauthorizedErr("email or password is incorrect")
	}
	db := s.db.WithContext(ctx)
	user, err := first[models.User](db.Where("email = ?", normalized))
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !utils.CheckPasswordHash(password, user.PasswordHash) {
		return nil, nil, unauthorizedErr("email or password is incorrect")
	}
	if !user.IsActive {
		return nil, nil, unauthorizedErr("account is deactivated")
	}

	pair, err := s.tokens.GenerateTokenPair(ctx, user, device)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := db.Model(user).Update("last_login_at", now).Error; err != nil {
		return nil, nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &now
	return user, pair, nil
}

func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, validationErr("refresh_token", "refresh token is required")
	}
	return s.tokens.RefreshAccessToken(ctx, refreshToken)
}

// Logout revokes the refresh token and denylists the presented access token
func (s *IdentityService) Logout(ctx context.Context, actor *models.User, refreshToken string, claims *types.Claims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.tokens.RevokeRefreshToken(ctx, actor.ID, refreshToken); err != nil {
		return err
	}
	return s.tokens.RevokeAccessToken(ctx, claims)
}

func (s *IdentityService) GetProfile(ctx context.Context, actor *models.User) (*models.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	user, err := first[models.User](s.db.WithContext(ctx).Where("id = ?", actor.ID))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundErr("user not found")
	}
	return user, nil
}

// ProfilePatch only carries the fields a user may edit on themselves
type ProfilePatch struct {
	FirstName *string
	LastName  *string
}

func (s *IdentityService) UpdateProfile(ctx context.Context, actor *models.User, patch ProfilePatch) (*models.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.FirstName != nil {
		v := strings.TrimSpace(*patch.FirstName)
		if v == "" {
			return nil, validationErr("first_name", "first name cannot be empty")
		}
		updates["first_name"] = v
	}
	if patch.LastName != nil {
		v := strings.TrimSpace(*patch.LastName)
		if v == "" {
			return nil, validationErr("last_name", "last name cannot be empty")
		}
		updates["last_name"] = v
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", actor.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return s.GetProfile(ctx, actor)
}

// ChangePassword also revokes every open session of the user
func (s *IdentityService) ChangePassword(ctx context.Context, actor *models.User, oldPassword, newPassword, confirm string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	user, err := s.GetProfile(ctx, actor)
	if err != nil {
		return err
	}
	if !utils.CheckPasswordHash(oldPassword, user.PasswordHash) {
		return validationErr("old_password", "current password is incorrect")
	}
	if newPassword != confirm {
		return validationErr("new_password_confirm", "passwords do not match")
	}
	if err := utils.ValidatePasswordStrength(newPassword); err != nil {
		return validationErr("new_password", err.Error())
	}
	return s.setPassword(ctx, user.ID, newPassword, nil)
}

func (s *IdentityService) setPassword(ctx context.Context, userID uint, password string, resetTokenID *uint) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if resetTokenID != nil {
			res := tx.Model(&models.PasswordResetToken{}).
				Where("id = ? AND used_at IS NULL", *resetTokenID).
				Update("used_at", s.now())
			if res.Error != nil {
				return fmt.Errorf("consume reset token: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return validationErr("token", "reset token is invalid or has expired")
			}
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash).Error; err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return s.tokens.RevokeAllUserTokens(ctx, tx, userID)
	})
}

// ChangeRole lets an admin move a user between common and provider
func (s *IdentityService) ChangeRole(ctx context.Context, actor *models.User, targetID uint, role, reason string) (*models.UserRoleChangeLog, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var entry *models.UserRoleChangeLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := first[models.User](tx.Where("id = ?", targetID))
		if err != nil {
			return err
		}
		if target == nil {
			return notFoundErr("user not found")
		}

		newRole, ok := models.ParseAssignableRole(role)
		if !ok {
			return validationErr("role", "role must be one of: common, provider")
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return validationErr("reason", "a reason for the role change is required")
		}
		if len([]rune(reason)) > maxRoleReasonLength {
			return validationErr("reason", fmt.Sprintf("reason must be at most %d characters", maxRoleReasonLength))
		}
		if target.IsSuperuser {
			return forbiddenErr("the role of a superuser cannot be changed")
		}
		if target.Role == newRole {
			return conflictErr(fmt.Sprintf("user already has the %s role", newRole))
		}

		entry, err = transitionRole(tx, target, newRole, reason, &actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RoleChanged("admin", string(entry.NewRole))
	s.logger.InfoContext(ctx, "user role changed",
		"user_id", entry.UserID, "previous_role", entry.PreviousRole, "new_role", entry.NewRole, "changed_by", actor.ID)
	return entry, nil
}

// ListRoleChanges returns the audit trail of one user, newest first
func (s *IdentityService) ListRoleChanges(ctx context.Context, actor *models.User, userID uint) ([]models.UserRoleChangeLog, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	target, err := first[models.User](db.Where("id = ?", userID))
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, notFoundErr("user not found")
	}

	var entries []models.UserRoleChangeLog
	if err := db.Where("user_id = ?", userID).
		Preload("ChangedBy").
		Order("changed_at DESC, id DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list role changes: %w", err)
	}
	return entries, nil
}

// RequestPasswordReset never tells the caller whether the email exists
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, ok := utils.NormalizeEmail(email)
	if !ok {
		return nil
	}
	db := s.db.WithContext(ctx)
	user, err := first[models.User](db.Where("email = ? AND is_active = ?", normalized, true))
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	token, err := utils.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	reset := &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(token),
		ExpiresAt: s.now().Add(passwordResetTTL),
	}
	if err := db.Create(reset).Error; err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.notifier.SendPasswordReset(ctx, user, token, reset.ExpiresAt); err != nil {
		s.logger.ErrorContext(ctx, "password reset delivery failed", "user_id", user.ID, "error", err)
	}
	return nil
}

func (s *IdentityService) ConfirmPasswordReset(ctx context.Context, token, newPassword, confirm string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return validationErr("token", "reset token is required")
	}
	reset, err := first[models.PasswordResetToken](s.db.WithContext(ctx).Where("token_hash = ?", utils.HashToken(token)))
	if err != nil {
		return err
	}
	if reset == nil || reset.UsedAt != nil || !s.now().Before(reset.ExpiresAt) {
		return validationErr("token", "reset token is invalid or has expired")
	}
	if newPassword != confirm {
		return validationErr("new_password_confirm", "passwords do not match")
	}
	if err := utils.ValidatePasswordStrength(newPassword); err != nil {
		return validationErr("new_password", err.Error())
	}
	if err := s.setPassword(ctx, reset.UserID, newPassword, &reset.ID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password reset completed", "user_id", reset.UserID)
	return nil
}
