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
	"service-marketplace-server/storage"
)

const (
	maxIdentificationNumberLength = 20
	maxPhoneNumberLength          = 15
	defaultMaxUploadSize          = 5 << 20
)

var certificationContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// VerificationService manages provider profiles and their admin verification
type VerificationService struct {
	db                 *gorm.DB
	store              storage.FileStore
	logger             *slog.Logger
	metrics            *metrics.Metrics
	alwaysMarkComplete bool
	maxUploadSize      int64
	now                func() time.Time
}

type VerificationOptions struct {
	// AlwaysMarkProfileComplete sets profile_complete on every verification
	// decision, not only on approval
	AlwaysMarkProfileComplete bool
	MaxUploadSize             int64
}

func NewVerificationService(db *gorm.DB, store storage.FileStore, logger *slog.Logger, m *metrics.Metrics, opts VerificationOptions) *VerificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	return &VerificationService{
		db:                 db,
		store:              store,
		logger:             logger,
		metrics:            m,
		alwaysMarkComplete: opts.AlwaysMarkProfileComplete,
		maxUploadSize:      opts.MaxUploadSize,
		now:                time.Now,
	}
}

type ProviderProfileInput struct {
	IdentificationType       string
	IdentificationNumber     string
	PhoneNumber              string
	Address                  string
	City                     string
	State                    string
	Country                  string
	CertificationDescription string
	YearsOfExperience        int
}

// ProviderProfilePatch holds optional changes; nil fields are left alone
type ProviderProfilePatch struct {
	IdentificationType       *string
	IdentificationNumber     *string
	PhoneNumber              *string
	Address                  *string
	City                     *string
	State                    *string
	Country                  *string
	CertificationDescription *string
	YearsOfExperience        *int
}

func validPhone(phone string) bool {
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9', r == ' ', r == '-', r == '+':
		default:
			return false
		}
	}
	return true
}

func (s *VerificationService) validateCertification(file *storage.File) error {
	if file == nil {
		return validationErr("certification_file", "a certification file is required")
	}
	if !certificationContentTypes[file.ContentType] {
		return validationErr("certification_file", "file must be a JPEG, PNG or PDF")
	}
	if file.Size > s.maxUploadSize {
		return validationErr("certification_file", fmt.Sprintf("file must not exceed %d MB", s.maxUploadSize>>20))
	}
	return nil
}

// identificationTaken reports whether another profile already uses number
func identificationTaken(tx *gorm.DB, number string, excludeProfileID uint) (bool, error) {
	var count int64
	q := tx.Model(&models.ProviderProfile{}).Where("identification_number = ?", number)
	if excludeProfileID != 0 {
		q = q.Where("id <> ?", excludeProfileID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *VerificationService) validateFields(p *models.ProviderProfile) error {
	if !p.IdentificationType.IsValid() {
		return validationErr("identification_type", "identification type must be one of: dni, ce, passport")
	}
	if p.IdentificationNumber == "" {
		return validationErr("identification_number", "identification number is required")
	}
	if len(p.IdentificationNumber) > maxIdentificationNumberLength {
		return validationErr("identification_number", "identification number must be at most 20 characters")
	}
	if p.PhoneNumber == "" {
		return validationErr("phone_number", "phone number is required")
	}
	if len(p.PhoneNumber) > maxPhoneNumberLength {
		return validationErr("phone_number", "phone number must be at most 15 characters")
	}
	if !validPhone(p.PhoneNumber) {
		return validationErr("phone_number", "phone number may only contain digits, spaces, hyphens and +")
	}
	required := []struct{ field, value string }{
		{"address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"country", p.Country},
	}
	for _, r := range required {
		if r.value == "" {
			return validationErr(r.field, r.field+" is required")
		}
	}
	return nil
}

// CreateProfile registers the identity and certification data of a provider
func (s *VerificationService) CreateProfile(ctx context.Context, actor *models.User, in ProviderProfileInput, file *storage.File) (*models.ProviderProfile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsProvider() {
		return nil, forbiddenErr("only providers can create a provider profile")
	}

	db := s.db.WithContext(ctx)
	existing, err := first[models.ProviderProfile](db.Where("user_id = ?", actor.ID))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflictErr("a provider profile already exists for this user")
	}

	if in.YearsOfExperience < 0 {
		return nil, validationErr("years_of_experience", "years of experience cannot be negative")
	}
	profile := &models.ProviderProfile{
		UserID:                   actor.ID,
		IdentificationType:       models.IdentificationType(strings.ToLower(strings.TrimSpace(in.IdentificationType))),
		IdentificationNumber:     strings.TrimSpace(in.IdentificationNumber),
		PhoneNumber:              strings.TrimSpace(in.PhoneNumber),
		Address:                  strings.TrimSpace(in.Address),
		City:                     strings.TrimSpace(in.City),
		State:                    strings.TrimSpace(in.State),
		Country:                  strings.TrimSpace(in.Country),
		CertificationDescription: strings.TrimSpace(in.CertificationDescription),
		YearsOfExperience:        uint(in.YearsOfExperience),
	}
	if err := s.validateFields(profile); err != nil {
		return nil, err
	}
	if err := s.validateCertification(file); err != nil {
		return nil, err
	}
	taken, err := identificationTaken(db, profile.IdentificationNumber, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, validationErr("identification_number", "this identification number is already registered")
	}

	stored, err := s.store.Save(ctx, fmt.Sprintf("certifications/%d", actor.ID), *file)
	if err != nil {
		return nil, fmt.Errorf("store certification: %w", err)
	}
	s.metrics.FileUploaded("certification")
	profile.CertificationURL = stored.URL
	profile.CertificationKey = stored.Key
	profile.CertificationContentType = file.ContentType
	profile.CertificationSize = file.Size

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "VerifiedBy").Create(profile).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", actor.ID).Update("profile_complete", true).Error
	})
	if err != nil {
		s.discard(ctx, stored.Key)
		if isDuplicateKey(err) {
			again, lookupErr := first[models.ProviderProfile](db.Where("user_id = ?", actor.ID))
			if lookupErr == nil && again != nil {
				return nil, conflictErr("a provider profile already exists for this user")
			}
			return nil, validationErr("identification_number", "this identification number is already registered")
		}
		return nil, fmt.Errorf("create provider profile: %w", err)
	}

	actor.ProfileComplete = true
	s.logger.InfoContext(ctx, "provider profile created", "user_id", actor.ID, "profile_id", profile.ID)
	return profile, nil
}

// GetOwnProfile returns NotFound when the actor has no profile yet
func (s *VerificationService) GetOwnProfile(ctx context.Context, actor *models.User) (*models.ProviderProfile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	profile, err := first[models.ProviderProfile](s.db.WithContext(ctx).Where("user_id = ?", actor.ID))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, notFoundErr("provider profile not found")
	}
	return profile, nil
}

// UpdateOwnProfile applies patch and optionally replaces the certification file
func (s *VerificationService) UpdateOwnProfile(ctx context.Context, actor *models.User, patch ProviderProfilePatch, file *storage.File) (*models.ProviderProfile, error) {
	profile, err := s.GetOwnProfile(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !CanMutate(actor, profile) {
		return nil, forbiddenErr("you cannot modify this profile")
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	if patch.IdentificationType != nil {
		profile.IdentificationType = models.IdentificationType(strings.ToLower(strings.TrimSpace(*patch.IdentificationType)))
	}
	apply(&profile.IdentificationNumber, patch.IdentificationNumber)
	apply(&profile.PhoneNumber, patch.PhoneNumber)
	apply(&profile.Address, patch.Address)
	apply(&profile.City, patch.City)
	apply(&profile.State, patch.State)
	apply(&profile.Country, patch.Country)
	apply(&profile.CertificationDescription, patch.CertificationDescription)
	if patch.YearsOfExperience != nil {
		if *patch.YearsOfExperience < 0 {
			return nil, validationErr("years_of_experience", "years of experience cannot be negative")
		}
		profile.YearsOfExperience = uint(*patch.YearsOfExperience)
	}
	if err := s.validateFields(profile); err != nil {
		return nil, err
	}
	if file != nil {
		if err := s.validateCertification(file); err != nil {
			return nil, err
		}
	}

	db := s.db.WithContext(ctx)
	taken, err := identificationTaken(db, profile.IdentificationNumber, profile.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, validationErr("identification_number", "this identification number is already registered")
	}

	oldKey := ""
	var stored *storage.StoredFile
	if file != nil {
		stored, err = s.store.Save(ctx, fmt.Sprintf("certifications/%d", actor.ID), *file)
		if err != nil {
			return nil, fmt.Errorf("store certification: %w", err)
		}
		s.metrics.FileUploaded("certification")
		oldKey = profile.CertificationKey
		profile.CertificationURL = stored.URL
		profile.CertificationKey = stored.Key
		profile.CertificationContentType = file.ContentType
		profile.CertificationSize = file.Size
	}

	err = db.Model(&models.ProviderProfile{}).Where("id = ?", profile.ID).Updates(map[string]interface{}{
		"identification_type":        profile.IdentificationType,
		"identification_number":      profile.IdentificationNumber,
		"phone_number":               profile.PhoneNumber,
		"address":                    profile.Address,
		"city":                       profile.City,
		"state":                      profile.State,
		"country":                    profile.Country,
		"certification_description":  profile.CertificationDescription,
		"years_of_experience":        profile.YearsOfExperience,
		"certification_url":          profile.CertificationURL,
		"certification_key":          profile.CertificationKey,
		"certification_content_type": profile.CertificationContentType,
		"certification_size":         profile.CertificationSize,
	}).Error
	if err != nil {
		if stored != nil {
			s.discard(ctx, stored.Key)
		}
		if isDuplicateKey(err) {
			return nil, validationErr("identification_number", "this identification number is already registered")
		}
		return nil, fmt.Errorf("update provider profile: %w", err)
	}
	if oldKey != "" {
		s.discard(ctx, oldKey)
	}
	return s.GetOwnProfile(ctx, actor)
}

// SetVerification records an admin decision on a provider's profile
func (s *VerificationService) SetVerification(ctx context.Context, actor *models.User, userID uint, verified bool, adminNotes string) (*models.ProviderProfile, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	var profile *models.ProviderProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		provider, err := first[models.User](tx.Where("id = ? AND role = ?", userID, models.RoleProvider))
		if err != nil {
			return err
		}
		if provider == nil {
			return notFoundErr("provider not found")
		}
		profile, err = first[models.ProviderProfile](tx.Where("user_id = ?", userID))
		if err != nil {
			return err
		}
		if profile == nil {
			return notFoundErr("provider profile not found")
		}

		updates := map[string]interface{}{
			"is_verified": verified,
			"admin_notes": strings.TrimSpace(adminNotes),
		}
		if verified {
			now := s.now()
			updates["verified_by_id"] = actor.ID
			updates["verified_at"] = now
		} else {
			updates["verified_by_id"] = nil
			updates["verified_at"] = nil
		}
		if err := tx.Model(&models.ProviderProfile{}).Where("id = ?", profile.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update verification: %w", err)
		}

		if s.alwaysMarkComplete || verified {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("profile_complete", true).Error; err != nil {
				return fmt.Errorf("mark profile complete: %w", err)
			}
		}

		profile, err = first[models.ProviderProfile](tx.Preload("User").Preload("VerifiedBy").Where("id = ?", profile.ID))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ProviderVerified(verified)
	s.logger.InfoContext(ctx, "provider verification updated",
		"user_id", userID, "verified", verified, "admin_id", actor.ID)
	return profile, nil
}

// AdminGetProvider returns a provider's profile with its user
func (s *VerificationService) AdminGetProvider(ctx context.Context, actor *models.User, userID uint) (*models.ProviderProfile, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	profile, err := first[models.ProviderProfile](s.db.WithContext(ctx).
		Preload("User").Preload("VerifiedBy").
		Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, notFoundErr("provider profile not found")
	}
	return profile, nil
}

// AdminListProviders lists profiles, optionally filtered by verification state
func (s *VerificationService) AdminListProviders(ctx context.Context, actor *models.User, verified *bool, page Page) ([]models.ProviderProfile, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.ProviderProfile{}).Order("created_at DESC, id DESC")
	if verified != nil {
		q = q.Where("is_verified = ?", *verified)
	}
	var profiles []models.ProviderProfile
	total, err := paginate(q, page, &profiles, "User")
	if err != nil {
		return nil, 0, fmt.Errorf("list providers: %w", err)
	}
	return profiles, total, nil
}

// discard removes a stored file without failing the caller
func (s *VerificationService) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.WarnContext(ctx, "stored file cleanup failed", "key", key, "error", err)
	}
}
