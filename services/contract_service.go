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

// ContractService runs the client/provider engagement state machine
type ContractService struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewContractService(db *gorm.DB, logger *slog.Logger, m *metrics.Metrics) *ContractService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContractService{db: db, logger: logger, metrics: m}
}

type ContractInput struct {
	ServiceID   uint
	Description string
	Location    string
	StartDate   time.Time
	EndDate     *time.Time
}

// ContractPatch holds the fields either party may change while pending
type ContractPatch struct {
	Description *string
	Location    *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// Create opens a pending contract for an active service
func (s *ContractService) Create(ctx context.Context, client *models.User, in ContractInput) (*models.ServiceContract, error) {
	if err := requireActor(client); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	svc, err := first[models.Service](db.Where("id = ?", in.ServiceID))
	if err != nil {
		return nil, err
	}
	if svc == nil || svc.Status != models.ServiceStatusActive {
		return nil, validationErr("service_id", "service does not exist or is not active")
	}
	if svc.ProviderID == client.ID {
		return nil, validationErr("service_id", "you cannot contract your own service")
	}

	contract := &models.ServiceContract{
		ClientID:    client.ID,
		ProviderID:  svc.ProviderID,
		ServiceID:   svc.ID,
		Status:      models.ContractPending,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
	}
	if err := validateContractFields(contract); err != nil {
		return nil, err
	}
	if err := db.Omit("Client", "Provider", "Service").Create(contract).Error; err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}

	s.metrics.ContractTransitioned(string(models.ContractPending))
	s.logger.InfoContext(ctx, "contract created",
		"contract_id", contract.ID, "client_id", client.ID, "provider_id", svc.ProviderID)
	return s.load(ctx, contract.ID)
}

func validateContractFields(c *models.ServiceContract) error {
	if c.Description == "" {
		return validationErr("description", "description is required")
	}
	if c.Location == "" {
		return validationErr("location", "location is required")
	}
	if c.StartDate.IsZero() {
		return validationErr("start_date", "start date is required")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return validationErr("end_date", "end date cannot be before the start date")
	}
	return nil
}

func (s *ContractService) load(ctx context.Context, id uint) (*models.ServiceContract, error) {
	contract, err := first[models.ServiceContract](s.db.WithContext(ctx).
		Preload("Client").Preload("Provider").Preload("Service").
		Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, notFoundErr("contract not found")
	}
	return contract, nil
}

// visible loads a contract only when the actor is one of its parties
func (s *ContractService) visible(ctx context.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	contract, err := first[models.ServiceContract](s.db.WithContext(ctx).
		Where("id = ? AND (client_id = ? OR provider_id = ?)", id, actor.ID, actor.ID))
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, notFoundErr("contract not found")
	}
	return contract, nil
}

// transition moves the contract from exactly one status to another. A lost
// race surfaces as a Conflict.
func (s *ContractService) transition(ctx context.Context, c *models.ServiceContract, to models.ContractStatus, extra map[string]interface{}) (*models.ServiceContract, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&models.ServiceContract{}).
		Where("id = ? AND status = ?", c.ID, c.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update contract status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, conflictErr("contract status changed concurrently")
	}
	s.metrics.ContractTransitioned(string(to))
	s.logger.InfoContext(ctx, "contract transitioned", "contract_id", c.ID, "from", c.Status, "to", to)
	return s.load(ctx, c.ID)
}

// pendingForProvider is the lookup behind accept and reject
func (s *ContractService) pendingForProvider(ctx context.Context, provider *models.User, id uint) (*models.ServiceContract, error) {
	if err := requireActor(provider); err != nil {
		return nil, err
	}
	contract, err := first[models.ServiceContract](s.db.WithContext(ctx).
		Where("id = ? AND provider_id = ? AND status = ?", id, provider.ID, models.ContractPending))
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, notFoundErr("no pending contract found for this provider")
	}
	return contract, nil
}

func (s *ContractService) Accept(ctx context.Context, provider *models.User, id uint) (*models.ServiceContract, error) {
	contract, err := s.pendingForProvider(ctx, provider, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, contract, models.ContractAccepted, nil)
	if IsKind(err, KindConflict) {
		return nil, notFoundErr("no pending contract found for this provider")
	}
	return updated, err
}

func (s *ContractService) Reject(ctx context.Context, provider *models.User, id uint, reason string) (*models.ServiceContract, error) {
	contract, err := s.pendingForProvider(ctx, provider, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr("rejection_reason", "a rejection reason is required")
	}
	updated, err := s.transition(ctx, contract, models.ContractRejected, map[string]interface{}{
		"rejection_reason": reason,
	})
	if IsKind(err, KindConflict) {
		return nil, notFoundErr("no pending contract found for this provider")
	}
	return updated, err
}

// Start is done by the provider once an accepted job begins
func (s *ContractService) Start(ctx context.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
	contract, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !contract.IsProvider(actor.ID) {
		return nil, forbiddenErr("only the provider can start a contract")
	}
	if contract.Status != models.ContractAccepted {
		return nil, conflictErr(fmt.Sprintf("cannot start a contract that is %s", contract.Status))
	}
	return s.transition(ctx, contract, models.ContractInProgress, nil)
}

// Complete may be called by either party
func (s *ContractService) Complete(ctx context.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
	contract, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractInProgress {
		return nil, conflictErr(fmt.Sprintf("cannot complete a contract that is %s", contract.Status))
	}
	return s.transition(ctx, contract, models.ContractCompleted, nil)
}

// Cancel is open to both parties before work starts and to the provider afterwards
func (s *ContractService) Cancel(ctx context.Context, actor *models.User, id uint, reason string) (*models.ServiceContract, error) {
	contract, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch contract.Status {
	case models.ContractPending, models.ContractAccepted:
	case models.ContractInProgress:
		if !contract.IsProvider(actor.ID) {
			return nil, forbiddenErr("only the provider can cancel a contract in progress")
		}
	default:
		return nil, conflictErr(fmt.Sprintf("cannot cancel a contract that is %s", contract.Status))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr("cancellation_reason", "a cancellation reason is required")
	}
	return s.transition(ctx, contract, models.ContractCancelled, map[string]interface{}{
		"cancellation_reason": reason,
		"cancelled_by_id":     actor.ID,
	})
}

// Update edits a pending contract
func (s *ContractService) Update(ctx context.Context, actor *models.User, id uint, patch ContractPatch) (*models.ServiceContract, error) {
	contract, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanMutate(actor, contract) {
		return nil, forbiddenErr("you cannot modify this contract")
	}
	if contract.Status != models.ContractPending {
		return nil, conflictErr("only pending contracts can be modified")
	}

	if patch.Description != nil {
		contract.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Location != nil {
		contract.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.StartDate != nil {
		contract.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		contract.EndDate = patch.EndDate
	}
	if err := validateContractFields(contract); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.ServiceContract{}).
		Where("id = ? AND status = ?", contract.ID, models.ContractPending).
		Updates(map[string]interface{}{
			"description": contract.Description,
			"location":    contract.Location,
			"start_date":  contract.StartDate,
			"end_date":    contract.EndDate,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update contract: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, conflictErr("only pending contracts can be modified")
	}
	return s.load(ctx, contract.ID)
}

// Review records one side's rating of the other after completion
func (s *ContractService) Review(ctx context.Context, actor *models.User, id uint, rating int, review string) (*models.ServiceContract, error) {
	contract, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractCompleted {
		return nil, conflictErr("contracts can only be reviewed once completed")
	}
	if rating < 1 || rating > 5 {
		return nil, validationErr("rating", "rating must be between 1 and 5")
	}

	ratingCol, reviewCol := "provider_rating", "provider_review"
	already := contract.ProviderRating != nil
	if contract.IsClient(actor.ID) {
		ratingCol, reviewCol = "client_rating", "client_review"
		already = contract.ClientRating != nil
	}
	if already {
		return nil, conflictErr("you have already reviewed this contract")
	}

	res := s.db.WithContext(ctx).Model(&models.ServiceContract{}).
		Where("id = ? AND status = ? AND "+ratingCol+" IS NULL", contract.ID, models.ContractCompleted).
		Updates(map[string]interface{}{
			ratingCol: rating,
			reviewCol: strings.TrimSpace(review),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("review contract: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, conflictErr("you have already reviewed this contract")
	}
	s.logger.InfoContext(ctx, "contract reviewed", "contract_id", contract.ID, "by", actor.ID, "rating", rating)
	return s.load(ctx, contract.ID)
}

// List returns contracts where the actor is client or provider
func (s *ContractService) List(ctx context.Context, actor *models.User, status string, page Page) ([]models.ServiceContract, int64, error) {
	if err := requireActor(actor); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.ServiceContract{}).
		Where("(client_id = ? OR provider_id = ?)", actor.ID, actor.ID).
		Order("created_at DESC, id DESC")
	if status != "" {
		if !models.ContractStatus(status).IsValid() {
			return nil, 0, validationErr("status", "unknown contract status")
		}
		q = q.Where("status = ?", status)
	}
	var contracts []models.ServiceContract
	total, err := paginate(q, page, &contracts, "Client", "Provider", "Service")
	if err != nil {
		return nil, 0, fmt.Errorf("list contracts: %w", err)
	}
	return contracts, total, nil
}

func (s *ContractService) Get(ctx context.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
	contract, err := s.visible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, contract.ID)
}
