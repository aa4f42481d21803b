package models

import (
	"time"
)

// ContractStatus represents the current status of a service contract
type ContractStatus string

const (
	ContractPending    ContractStatus = "pending"
	ContractAccepted   ContractStatus = "accepted"
	ContractInProgress ContractStatus = "in_progress"
	ContractCompleted  ContractStatus = "completed"
	ContractCancelled  ContractStatus = "cancelled"
	ContractRejected   ContractStatus = "rejected"
)

// IsTerminal reports whether no further status change is possible
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractCompleted, ContractCancelled, ContractRejected:
		return true
	default:
		return false
	}
}

func (s ContractStatus) IsValid() bool {
	switch s {
	case ContractPending, ContractAccepted, ContractInProgress,
		ContractCompleted, ContractCancelled, ContractRejected:
		return true
	default:
		return false
	}
}

// ServiceContract is an engagement between a client and a provider for one service.
// ClientRating/ClientReview are written by the client, ProviderRating/ProviderReview
// by the provider.
type ServiceContract struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	ClientID           uint           `json:"client_id" gorm:"not null;index"`
	Client             *User          `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	ProviderID         uint           `json:"provider_id" gorm:"not null;index"`
	Provider           *User          `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
	ServiceID          uint           `json:"service_id" gorm:"not null;index"`
	Service            *Service       `json:"service,omitempty" gorm:"foreignKey:ServiceID"`
	Status             ContractStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	StartDate          time.Time      `json:"start_date" gorm:"not null"`
	EndDate            *time.Time     `json:"end_date"`
	Description        string         `json:"description" gorm:"type:text;not null"`
	Location           string         `json:"location" gorm:"type:varchar(200);not null"`
	RejectionReason    string         `json:"rejection_reason" gorm:"type:text;not null;default:''"`
	CancellationReason string         `json:"cancellation_reason" gorm:"type:text;not null;default:''"`
	CancelledByID      *uint          `json:"cancelled_by_id"`
	ClientRating       *int           `json:"client_rating" gorm:"type:smallint"`
	ClientReview       string         `json:"client_review" gorm:"type:text;not null;default:''"`
	ProviderRating     *int           `json:"provider_rating" gorm:"type:smallint"`
	ProviderReview     string         `json:"provider_review" gorm:"type:text;not null;default:''"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (ServiceContract) TableName() string {
	return "service_contracts"
}

// OwnedBy is true for both parties of the contract
func (c *ServiceContract) OwnedBy(userID uint) bool {
	return c.ClientID == userID || c.ProviderID == userID
}

func (c *ServiceContract) IsClient(userID uint) bool {
	return c.ClientID == userID
}

func (c *ServiceContract) IsProvider(userID uint) bool {
	return c.ProviderID == userID
}
