package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"service-marketplace-server/metrics"
	"service-marketplace-server/models"
	"service-marketplace-server/storage"
)

var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// CatalogService manages categories, listings and listing images
type CatalogService struct {
	db            *gorm.DB
	store         storage.FileStore
	logger        *slog.Logger
	metrics       *metrics.Metrics
	maxUploadSize int64
}

func NewCatalogService(db *gorm.DB, store storage.FileStore, logger *slog.Logger, m *metrics.Metrics, maxUploadSize int64) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &CatalogService{db: db, store: store, logger: logger, metrics: m, maxUploadSize: maxUploadSize}
}

// ---- Categories ----

type CategoryInput struct {
	Name        string
	Description string
}

func (s *CatalogService) ListCategories(ctx context.Context, search string) ([]models.ServiceCategory, error) {
	q := s.db.WithContext(ctx).Order("name ASC")
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	var categories []models.ServiceCategory
	if err := q.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id uint) (*models.ServiceCategory, error) {
	category, err := first[models.ServiceCategory](s.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, notFoundErr("category not found")
	}
	return category, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, actor *models.User, in CategoryInput) (*models.ServiceCategory, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationErr("name", "category name is required")
	}
	if len(name) > 100 {
		return nil, validationErr("name", "category name must be at most 100 characters")
	}
	category := &models.ServiceCategory{Name: name, Description: strings.TrimSpace(in.Description)}
	if err := s.db.WithContext(ctx).Create(category).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, conflictErr("a category with this name already exists")
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, actor *models.User, id uint, in CategoryInput) (*models.ServiceCategory, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationErr("name", "category name is required")
	}
	if len(name) > 100 {
		return nil, validationErr("name", "category name must be at most 100 characters")
	}
	err = s.db.WithContext(ctx).Model(&models.ServiceCategory{}).Where("id = ?", category.ID).
		Updates(map[string]interface{}{"name": name, "description": strings.TrimSpace(in.Description)}).Error
	if err != nil {
		if isDuplicateKey(err) {
			return nil, conflictErr("a category with this name already exists")
		}
		return nil, fmt.Errorf("update category: %w", err)
	}
	return s.GetCategory(ctx, id)
}

// DeleteCategory refuses while any listing, deleted or not, still points at it
func (s *CatalogService) DeleteCategory(ctx context.Context, actor *models.User, id uint) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	var inUse int64
	if err := db.Unscoped().Model(&models.Service{}).Where("category_id = ?", id).Count(&inUse).Error; err != nil {
		return fmt.Errorf("count category services: %w", err)
	}
	if inUse > 0 {
		return conflictErr("category still has services")
	}
	if err := db.Delete(&models.ServiceCategory{}, id).Error; err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// ---- Services ----

type ServiceInput struct {
	CategoryID    uint
	Title         string
	Description   string
	Price         float64
	PriceType     string
	Location      string
	City          string
	State         string
	Country       string
	AvailableDays []string
}

// ServicePatch holds optional changes; status is never writable here
type ServicePatch struct {
	CategoryID    *uint
	Title         *string
	Description   *string
	Price         *float64
	PriceType     *string
	Location      *string
	City          *string
	State         *string
	Country       *string
	AvailableDays *[]string
}

func normalizeDays(days []string) (string, error) {
	seen := map[string]bool{}
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		known := false
		for _, w := range weekdays {
			if w == d {
				known = true
				break
			}
		}
		if !known {
			return "", validationErr("available_days", fmt.Sprintf("%q is not a weekday", d))
		}
		seen[d] = true
	}
	var out []string
	for _, w := range weekdays {
		if seen[w] {
			out = append(out, w)
		}
	}
	return strings.Join(out, ","), nil
}

func (s *CatalogService) validateService(tx *gorm.DB, svc *models.Service) error {
	if svc.Title == "" {
		return validationErr("title", "title is required")
	}
	if len(svc.Title) > 200 {
		return validationErr("title", "title must be at most 200 characters")
	}
	if svc.Description == "" {
		return validationErr("description", "description is required")
	}
	if svc.Price < 0 {
		return validationErr("price", "price cannot be negative")
	}
	if !svc.PriceType.IsValid() {
		return validationErr("price_type", "price type must be one of: fixed, hourly, negotiable")
	}
	category, err := first[models.ServiceCategory](tx.Where("id = ?", svc.CategoryID))
	if err != nil {
		return err
	}
	if category == nil {
		return validationErr("category_id", "category does not exist")
	}
	return nil
}

// CreateService adds a pending listing owned by the actor
func (s *CatalogService) CreateService(ctx context.Context, actor *models.User, in ServiceInput) (*models.Service, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsProvider() {
		return nil, forbiddenErr("only providers can create services")
	}
	days, err := normalizeDays(in.AvailableDays)
	if err != nil {
		return nil, err
	}
	svc := &models.Service{
		ProviderID:    actor.ID,
		CategoryID:    in.CategoryID,
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price,
		PriceType:     models.PriceType(strings.ToLower(strings.TrimSpace(in.PriceType))),
		Location:      strings.TrimSpace(in.Location),
		City:          strings.TrimSpace(in.City),
		State:         strings.TrimSpace(in.State),
		Country:       strings.TrimSpace(in.Country),
		AvailableDays: days,
		Status:        models.ServiceStatusPending,
	}
	db := s.db.WithContext(ctx)
	if err := s.validateService(db, svc); err != nil {
		return nil, err
	}
	if err := db.Omit(clause.Associations).Create(svc).Error; err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.logger.InfoContext(ctx, "service created", "service_id", svc.ID, "provider_id", actor.ID)
	return s.loadService(ctx, svc.ID)
}

func (s *CatalogService) loadService(ctx context.Context, id uint) (*models.Service, error) {
	svc, err := first[models.Service](s.db.WithContext(ctx).
		Preload("Category").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, notFoundErr("service not found")
	}
	return svc, nil
}

// ServiceFilter narrows the public listing
type ServiceFilter struct {
	CategoryID   uint
	PriceType    string
	City         string
	State        string
	Country      string
	MinPrice     *float64
	MaxPrice     *float64
	AvailableDay string
	Search       string
	Ordering     string
	Page         Page
}

var serviceOrderings = map[string]string{
	"price":       "price ASC, id ASC",
	"-price":      "price DESC, id DESC",
	"created_at":  "created_at ASC, id ASC",
	"-created_at": "created_at DESC, id DESC",
}

// ListServices is the public catalog: active listings only
func (s *CatalogService) ListServices(ctx context.Context, f ServiceFilter) ([]models.Service, int64, error) {
	order, ok := serviceOrderings[f.Ordering]
	if !ok {
		if f.Ordering != "" {
			return nil, 0, validationErr("ordering", "ordering must be one of: price, -price, created_at, -created_at")
		}
		order = serviceOrderings["-created_at"]
	}

	q := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("status = ?", models.ServiceStatusActive).
		Order(order)
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.PriceType != "" {
		q = q.Where("price_type = ?", strings.ToLower(f.PriceType))
	}
	for column, value := range map[string]string{"city": f.City, "state": f.State, "country": f.Country} {
		if value = strings.TrimSpace(value); value != "" {
			q = q.Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(value)+"%")
		}
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if day := strings.ToLower(strings.TrimSpace(f.AvailableDay)); day != "" {
		q = q.Where("available_days LIKE ?", "%"+day+"%")
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(location) LIKE ?)", like, like, like)
	}

	var services []models.Service
	total, err := paginate(q, f.Page, &services, "Category", "Images")
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	return services, total, nil
}

// GetService hides listings that are not active from everyone but the owner and staff
func (s *CatalogService) GetService(ctx context.Context, actor *models.User, id uint) (*models.Service, error) {
	svc, err := s.loadService(ctx, id)
	if err != nil {
		return nil, err
	}
	if svc.Status != models.ServiceStatusActive && !CanMutate(actor, svc) {
		return nil, notFoundErr("service not found")
	}
	return svc, nil
}

// ownedService loads a listing and checks the actor may change it
func (s *CatalogService) ownedService(ctx context.Context, actor *models.User, id uint) (*models.Service, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	svc, err := first[models.Service](s.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, notFoundErr("service not found")
	}
	if !CanMutate(actor, svc) {
		return nil, forbiddenErr("you do not have permission to modify this service")
	}
	return svc, nil
}

func (s *CatalogService) UpdateService(ctx context.Context, actor *models.User, id uint, patch ServicePatch) (*models.Service, error) {
	svc, err := s.ownedService(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	if patch.CategoryID != nil {
		svc.CategoryID = *patch.CategoryID
	}
	set(&svc.Title, patch.Title)
	set(&svc.Description, patch.Description)
	set(&svc.Location, patch.Location)
	set(&svc.City, patch.City)
	set(&svc.State, patch.State)
	set(&svc.Country, patch.Country)
	if patch.Price != nil {
		svc.Price = *patch.Price
	}
	if patch.PriceType != nil {
		svc.PriceType = models.PriceType(strings.ToLower(strings.TrimSpace(*patch.PriceType)))
	}
	if patch.AvailableDays != nil {
		days, err := normalizeDays(*patch.AvailableDays)
		if err != nil {
			return nil, err
		}
		svc.AvailableDays = days
	}

	db := s.db.WithContext(ctx)
	if err := s.validateService(db, svc); err != nil {
		return nil, err
	}
	err = db.Model(&models.Service{}).Where("id = ?", svc.ID).Updates(map[string]interface{}{
		"category_id":    svc.CategoryID,
		"title":          svc.Title,
		"description":    svc.Description,
		"price":          svc.Price,
		"price_type":     svc.PriceType,
		"location":       svc.Location,
		"city":           svc.City,
		"state":          svc.State,
		"country":        svc.Country,
		"available_days": svc.AvailableDays,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	return s.loadService(ctx, svc.ID)
}

// DeleteService soft deletes a listing that has no open contracts
func (s *CatalogService) DeleteService(ctx context.Context, actor *models.User, id uint) error {
	svc, err := s.ownedService(ctx, actor, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.ServiceContract{}).
			Where("service_id = ? AND status IN ?", svc.ID, []models.ContractStatus{
				models.ContractPending, models.ContractAccepted, models.ContractInProgress,
			}).Count(&open).Error; err != nil {
			return fmt.Errorf("count open contracts: %w", err)
		}
		if open > 0 {
			return conflictErr("service has open contracts")
		}
		if err := tx.Delete(&models.Service{}, svc.ID).Error; err != nil {
			return fmt.Errorf("delete service: %w", err)
		}
		s.logger.InfoContext(ctx, "service deleted", "service_id", svc.ID, "actor_id", actor.ID)
		return nil
	})
}

// DeactivateService lets the owner take a listing off the catalog
func (s *CatalogService) DeactivateService(ctx context.Context, actor *models.User, id uint) (*models.Service, error) {
	svc, err := s.ownedService(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if svc.Status == models.ServiceStatusInactive {
		return nil, conflictErr("service is already inactive")
	}
	res := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("id = ? AND status = ?", svc.ID, svc.Status).
		Update("status", models.ServiceStatusInactive)
	if res.Error != nil {
		return nil, fmt.Errorf("deactivate service: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, conflictErr("service status changed concurrently")
	}
	s.metrics.ServiceStatusChanged(string(models.ServiceStatusInactive))
	return s.loadService(ctx, svc.ID)
}

// AdminSetStatus approves, suspends or resets a listing
func (s *CatalogService) AdminSetStatus(ctx context.Context, actor *models.User, id uint, status, comment string) (*models.Service, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	newStatus, ok := models.ParseServiceStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok {
		return nil, validationErr("status", "status must be one of: active, inactive, pending")
	}
	svc, err := first[models.Service](s.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, notFoundErr("service not found")
	}
	err = s.db.WithContext(ctx).Model(&models.Service{}).Where("id = ?", svc.ID).
		Updates(map[string]interface{}{"status": newStatus, "admin_comment": strings.TrimSpace(comment)}).Error
	if err != nil {
		return nil, fmt.Errorf("set service status: %w", err)
	}
	s.metrics.ServiceStatusChanged(string(newStatus))
	s.logger.InfoContext(ctx, "service status set", "service_id", svc.ID, "status", newStatus, "admin_id", actor.ID)
	return s.loadService(ctx, svc.ID)
}

// AdminListServices lists listings of any status
func (s *CatalogService) AdminListServices(ctx context.Context, actor *models.User, status string, page Page) ([]models.Service, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	q := s.db.WithContext(ctx).Model(&models.Service{}).Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var services []models.Service
	total, err := paginate(q, page, &services, "Category", "Provider")
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	return services, total, nil
}

// ---- Images ----

// lockService takes the row lock that serialises image changes of one listing
func lockService(tx *gorm.DB, id uint) (*models.Service, error) {
	return first[models.Service](tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// UploadImage stores a picture; the first one of a listing becomes primary
func (s *CatalogService) UploadImage(ctx context.Context, actor *models.User, serviceID uint, file *storage.File) (*models.ServiceImage, error) {
	svc, err := s.ownedService(ctx, actor, serviceID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, validationErr("image", "an image file is required")
	}
	if !imageContentTypes[file.ContentType] {
		return nil, validationErr("image", "image must be a JPEG, PNG or WebP")
	}
	if file.Size > s.maxUploadSize {
		return nil, validationErr("image", fmt.Sprintf("image must not exceed %d MB", s.maxUploadSize>>20))
	}

	stored, err := s.store.Save(ctx, fmt.Sprintf("services/%d", svc.ID), *file)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	s.metrics.FileUploaded("service_image")

	image := &models.ServiceImage{ServiceID: svc.ID, URL: stored.URL, StorageKey: stored.Key}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockService(tx, svc.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return notFoundErr("service not found")
		}
		var count int64
		if err := tx.Model(&models.ServiceImage{}).Where("service_id = ?", svc.ID).Count(&count).Error; err != nil {
			return err
		}
		image.IsPrimary = count == 0
		return tx.Omit("Service").Create(image).Error
	})
	if err != nil {
		s.discard(ctx, stored.Key)
		return nil, err
	}
	return image, nil
}

// ownedImage loads an image with its listing and checks the actor may change it
func (s *CatalogService) ownedImage(ctx context.Context, actor *models.User, imageID uint) (*models.ServiceImage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	image, err := first[models.ServiceImage](s.db.WithContext(ctx).Preload("Service").Where("id = ?", imageID))
	if err != nil {
		return nil, err
	}
	if image == nil || image.Service == nil {
		return nil, notFoundErr("image not found")
	}
	if !CanMutate(actor, image) {
		return nil, forbiddenErr("you do not have permission to modify this image")
	}
	return image, nil
}

// DeleteImage removes an image and promotes the oldest sibling when no primary is left
func (s *CatalogService) DeleteImage(ctx context.Context, actor *models.User, imageID uint) error {
	image, err := s.ownedImage(ctx, actor, imageID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockService(tx, image.ServiceID); err != nil {
			return err
		}
		res := tx.Delete(&models.ServiceImage{}, image.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFoundErr("image not found")
		}
		// decide under the service lock; image.IsPrimary may predate a concurrent SetPrimary
		var primaries int64
		if err := tx.Model(&models.ServiceImage{}).
			Where("service_id = ? AND is_primary = ?", image.ServiceID, true).
			Count(&primaries).Error; err != nil {
			return err
		}
		if primaries > 0 {
			return nil
		}
		next, err := first[models.ServiceImage](tx.Where("service_id = ?", image.ServiceID).Order("created_at ASC, id ASC"))
		if err != nil || next == nil {
			return err
		}
		return tx.Model(&models.ServiceImage{}).Where("id = ?", next.ID).Update("is_primary", true).Error
	})
	if err != nil {
		return err
	}
	s.discard(ctx, image.StorageKey)
	return nil
}

// SetPrimary makes imageID the only primary image of its listing
func (s *CatalogService) SetPrimary(ctx context.Context, actor *models.User, imageID uint) (*models.ServiceImage, error) {
	image, err := s.ownedImage(ctx, actor, imageID)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockService(tx, image.ServiceID); err != nil {
			return err
		}
		return tx.Model(&models.ServiceImage{}).
			Where("service_id = ?", image.ServiceID).
			Update("is_primary", gorm.Expr("(id = ?)", image.ID)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("set primary image: %w", err)
	}
	image.IsPrimary = true
	return image, nil
}

func (s *CatalogService) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.WarnContext(ctx, "stored file cleanup failed", "key", key, "error", err)
	}
}
