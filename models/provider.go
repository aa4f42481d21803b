package models

import (
	"time"
)

// IdentificationType is the kind of identity document a provider registers with
type IdentificationType string

const (
	IdentificationDNI      IdentificationType = "dni"
	IdentificationCE       IdentificationType = "ce"
	IdentificationPassport IdentificationType = "passport"
)

// IsValid checks the identification type against the accepted documents
func (t IdentificationType) IsValid() bool {
	switch t {
	case IdentificationDNI, IdentificationCE, IdentificationPassport:
		return true
	default:
		return false
	}
}

// ProviderProfile holds identity and certification data of a provider
type ProviderProfile struct {
	ID                       uint               `json:"id" gorm:"primaryKey"`
	UserID                   uint               `json:"user_id" gorm:"uniqueIndex;not null"`
	User                     *User              `json:"user,omitempty" gorm:"foreignKey:UserID"`
	IdentificationType       IdentificationType `json:"identification_type" gorm:"type:varchar(20);not null"`
	IdentificationNumber     string             `json:"identification_number" gorm:"type:varchar(20);uniqueIndex;not null"`
	PhoneNumber              string             `json:"phone_number" gorm:"type:varchar(15);not null"`
	Address                  string             `json:"address" gorm:"type:text;not null"`
	City                     string             `json:"city" gorm:"type:varchar(100);not null"`
	State                    string             `json:"state" gorm:"type:varchar(100);not null"`
	Country                  string             `json:"country" gorm:"type:varchar(100);not null"`
	CertificationURL         string             `json:"certification_file" gorm:"type:varchar(500);not null"`
	CertificationKey         string             `json:"-" gorm:"type:varchar(500);not null"`
	CertificationContentType string             `json:"certification_content_type" gorm:"type:varchar(100);not null"`
	CertificationSize        int64              `json:"certification_size" gorm:"not null"`
	CertificationDescription string             `json:"certification_description" gorm:"type:text;not null"`
	YearsOfExperience        uint               `json:"years_of_experience" gorm:"not null"`
	IsVerified               bool               `json:"is_verified" gorm:"not null;default:false"`

	// Admin verification fields
	AdminNotes   string     `json:"admin_notes" gorm:"type:text;not null;default:''"`
	VerifiedByID *uint      `json:"verified_by_id"`
	VerifiedBy   *User      `json:"verified_by,omitempty" gorm:"foreignKey:VerifiedByID"`
	VerifiedAt   *time.Time `json:"verified_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProviderProfile) TableName() string {
	return "provider_profiles"
}

func (p *ProviderProfile) OwnedBy(userID uint) bool {
	return p.UserID == userID
}

// ProviderRequestStatus represents the review state of a provider request
type ProviderRequestStatus string

const (
	ProviderRequestPending  ProviderRequestStatus = "pending"
	ProviderRequestApproved ProviderRequestStatus = "approved"
	ProviderRequestRejected ProviderRequestStatus = "rejected"
)

// ProviderRequest is a user's application to become a provider.
// A user has at most one pending request at a time.
type ProviderRequest struct {
	ID            uint                  `json:"id" gorm:"primaryKey"`
	UserID        uint                  `json:"user_id" gorm:"not null;index;uniqueIndex:idx_provider_requests_one_pending,where:status = 'pending'"`
	User          *User                 `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Status        ProviderRequestStatus `json:"status" gorm:"type:varchar(10);not null;default:'pending';index"`
	Reason        string                `json:"request_reason" gorm:"type:text;not null"`
	AdminResponse string                `json:"admin_response" gorm:"type:text;not null;default:''"`
	ReviewedByID  *uint                 `json:"reviewed_by_id"`
	ReviewedBy    *User                 `json:"reviewed_by,omitempty" gorm:"foreignKey:ReviewedByID"`
	ReviewedAt    *time.Time            `json:"reviewed_at"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func (ProviderRequest) TableName() string {
	return "provider_requests"
}

// IsTerminal reports whether the request has already been reviewed
func (r *ProviderRequest) IsTerminal() bool {
	return r.Status == ProviderRequestApproved || r.Status == ProviderRequestRejected
}
