package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"service-marketplace-server/models"
)

// DashboardStats is the admin overview
type DashboardStats struct {
	TotalUsers              int64            `json:"total_users"`
	TotalProviders          int64            `json:"total_providers"`
	PendingProviderRequests int64            `json:"pending_provider_requests"`
	UnverifiedProviders     int64            `json:"unverified_providers"`
	PendingServices         int64            `json:"pending_services"`
	ActiveServices          int64            `json:"active_services"`
	ContractsByStatus       map[string]int64 `json:"contracts_by_status"`
}

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

// Stats runs the independent counts concurrently
func (s *DashboardService) Stats(ctx context.Context, actor *models.User) (*DashboardStats, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	stats := &DashboardStats{ContractsByStatus: map[string]int64{}}
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, model interface{}, query string, args ...interface{}) {
		g.Go(func() error {
			q := s.db.WithContext(gctx).Model(model)
			if query != "" {
				q = q.Where(query, args...)
			}
			return q.Count(dst).Error
		})
	}

	count(&stats.TotalUsers, &models.User{}, "")
	count(&stats.TotalProviders, &models.User{}, "role = ?", models.RoleProvider)
	count(&stats.PendingProviderRequests, &models.ProviderRequest{}, "status = ?", models.ProviderRequestPending)
	count(&stats.UnverifiedProviders, &models.ProviderProfile{}, "is_verified = ?", false)
	count(&stats.PendingServices, &models.Service{}, "status = ?", models.ServiceStatusPending)
	count(&stats.ActiveServices, &models.Service{}, "status = ?", models.ServiceStatusActive)

	var byStatus []struct {
		Status string
		Total  int64
	}
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.ServiceContract{}).
			Select("status, COUNT(*) AS total").
			Group("status").
			Scan(&byStatus).Error
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	for _, row := range byStatus {
		stats.ContractsByStatus[row.Status] = row.Total
	}
	return stats, nil
}
