package models

import (
	"time"

	"gorm.io/gorm"
)

// ServiceCategory represents a service category
type ServiceCategory struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ServiceCategory) TableName() string {
	return "service_categories"
}

// ServiceStatus is the approval state of a listing
type ServiceStatus string

const (
	ServiceStatusPending  ServiceStatus = "pending"
	ServiceStatusActive   ServiceStatus = "active"
	ServiceStatusInactive ServiceStatus = "inactive"
)

// ParseServiceStatus accepts the statuses an admin may set.
func ParseServiceStatus(s string) (ServiceStatus, bool) {
	switch ServiceStatus(s) {
	case ServiceStatusPending, ServiceStatusActive, ServiceStatusInactive:
		return ServiceStatus(s), true
	default:
		return "", false
	}
}

type PriceType string

const (
	PriceTypeFixed      PriceType = "fixed"
	PriceTypeHourly     PriceType = "hourly"
	PriceTypeNegotiable PriceType = "negotiable"
)

func (p PriceType) IsValid() bool {
	switch p {
	case PriceTypeFixed, PriceTypeHourly, PriceTypeNegotiable:
		return true
	default:
		return false
	}
}

// Service represents a listing offered by a provider
type Service struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	ProviderID    uint             `json:"provider_id" gorm:"not null;index"`
	Provider      *User            `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
	CategoryID    uint             `json:"category_id" gorm:"not null;index"`
	Category      *ServiceCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Title         string           `json:"title" gorm:"type:varchar(200);not null"`
	Description   string           `json:"description" gorm:"type:text;not null"`
	Price         float64          `json:"price" gorm:"type:decimal(10,2);not null"`
	PriceType     PriceType        `json:"price_type" gorm:"type:varchar(20);not null"`
	Location      string           `json:"location" gorm:"type:varchar(200)"`
	City          string           `json:"city" gorm:"type:varchar(100);index"`
	State         string           `json:"state" gorm:"type:varchar(100)"`
	Country       string           `json:"country" gorm:"type:varchar(100)"`
	AvailableDays string           `json:"available_days" gorm:"type:varchar(100)"` // comma separated weekdays
	Status        ServiceStatus    `json:"status" gorm:"type:varchar(10);not null;default:'pending';index"`
	AdminComment  string           `json:"admin_comment" gorm:"type:text;not null;default:''"`
	Images        []ServiceImage   `json:"images" gorm:"foreignKey:ServiceID"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for the Service model
func (Service) TableName() string {
	return "services"
}

func (s *Service) OwnedBy(userID uint) bool {
	return s.ProviderID == userID
}

// ServiceImage is one picture of a listing. At most one per service is primary.
type ServiceImage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ServiceID  uint      `json:"service_id" gorm:"not null;index"`
	Service    *Service  `json:"-" gorm:"foreignKey:ServiceID"`
	URL        string    `json:"image" gorm:"type:varchar(500);not null"`
	StorageKey string    `json:"-" gorm:"type:varchar(500);not null"`
	IsPrimary  bool      `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ServiceImage) TableName() string {
	return "service_images"
}

// OwnedBy needs the parent service loaded
func (i *ServiceImage) OwnedBy(userID uint) bool {
	return i.Service != nil && i.Service.OwnedBy(userID)
}
