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
)

// ProviderRequestService runs the "become a provider" workflow
type ProviderRequestService struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewProviderRequestService(db *gorm.DB, logger *slog.Logger, m *metrics.Metrics) *ProviderRequestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderRequestService{db: db, logger: logger, metrics: m, now: time.Now}
}

// Submit opens a pending request for the actor
func (s *ProviderRequestService) Submit(ctx context.Context, actor *models.User, reason string) (*models.ProviderRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr("request_reason", "a reason for the request is required")
	}
	if actor.IsProvider() {
		return nil, conflictErr("you are already a provider")
	}

	db := s.db.WithContext(ctx)
	pending, err := first[models.ProviderRequest](db.Where("user_id = ? AND status = ?", actor.ID, models.ProviderRequestPending))
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, conflictErr("you already have a pending provider request")
	}

	req := &models.ProviderRequest{
		UserID: actor.ID,
		Status: models.ProviderRequestPending,
		Reason: reason,
	}
	if err := db.Omit("User", "ReviewedBy").Create(req).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, conflictErr("you already have a pending provider request")
		}
		return nil, fmt.Errorf("create provider request: %w", err)
	}

	s.logger.InfoContext(ctx, "provider request submitted", "user_id", actor.ID, "request_id", req.ID)
	return req, nil
}

// Review approves or rejects a pending request. Approval promotes the user.
func (s *ProviderRequestService) Review(ctx context.Context, actor *models.User, requestID uint, decision, adminResponse string) (*models.ProviderRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	status := models.ProviderRequestStatus(strings.ToLower(strings.TrimSpace(decision)))
	if status != models.ProviderRequestApproved && status != models.ProviderRequestRejected {
		return nil, validationErr("status", "decision must be one of: approved, rejected")
	}
	adminResponse = strings.TrimSpace(adminResponse)
	if status == models.ProviderRequestRejected && adminResponse == "" {
		return nil, validationErr("admin_response", "a response is required when rejecting a request")
	}

	var (
		req     *models.ProviderRequest
		promote *models.UserRoleChangeLog
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = first[models.ProviderRequest](tx.Where("id = ?", requestID))
		if err != nil {
			return err
		}
		if req == nil {
			return notFoundErr("provider request not found")
		}
		if req.Status != models.ProviderRequestPending {
			return conflictErr("this request has already been reviewed")
		}

		reviewedAt := s.now()
		res := tx.Model(&models.ProviderRequest{}).
			Where("id = ? AND status = ?", req.ID, models.ProviderRequestPending).
			Updates(map[string]interface{}{
				"status":         status,
				"admin_response": adminResponse,
				"reviewed_by_id": actor.ID,
				"reviewed_at":    reviewedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("update provider request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return conflictErr("this request has already been reviewed")
		}
		req.Status = status
		req.AdminResponse = adminResponse
		req.ReviewedByID = &actor.ID
		req.ReviewedAt = &reviewedAt

		if status != models.ProviderRequestApproved {
			return nil
		}
		user, err := first[models.User](tx.Where("id = ?", req.UserID))
		if err != nil {
			return err
		}
		if user == nil {
			return notFoundErr("requesting user no longer exists")
		}
		if user.IsProvider() {
			return nil
		}
		promote, err = transitionRole(tx, user, models.RoleProvider,
			fmt.Sprintf("provider request #%d approved", req.ID), &actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ProviderRequestReviewed(string(status))
	if promote != nil {
		s.metrics.RoleChanged("provider_request", string(promote.NewRole))
	}
	s.logger.InfoContext(ctx, "provider request reviewed",
		"request_id", req.ID, "decision", status, "admin_id", actor.ID, "role_changed", promote != nil)
	return req, nil
}

// List returns requests for admins, optionally filtered by status
func (s *ProviderRequestService) List(ctx context.Context, actor *models.User, status string, page Page) ([]models.ProviderRequest, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.ProviderRequest{}).Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reqs []models.ProviderRequest
	total, err := paginate(q, page, &reqs, "User")
	if err != nil {
		return nil, 0, fmt.Errorf("list provider requests: %w", err)
	}
	return reqs, total, nil
}

func (s *ProviderRequestService) Get(ctx context.Context, actor *models.User, id uint) (*models.ProviderRequest, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	req, err := first[models.ProviderRequest](s.db.WithContext(ctx).
		Preload("User").Preload("ReviewedBy").
		Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, notFoundErr("provider request not found")
	}
	return req, nil
}

// ListMine returns the actor's own requests, newest first
func (s *ProviderRequestService) ListMine(ctx context.Context, actor *models.User) ([]models.ProviderRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var reqs []models.ProviderRequest
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.ID).
		Order("created_at DESC, id DESC").
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("list own provider requests: %w", err)
	}
	return reqs, nil
}
