package services

import (
	"gorm.io/gorm"

	"service-marketplace-server/models"
)

// Owned is implemented by every entity that has an owning user
type Owned interface {
	OwnedBy(userID uint) bool
}

// CanMutate is the owner-or-staff rule shared by every write path
func CanMutate(actor *models.User, entity Owned) bool {
	if actor == nil || entity == nil {
		return false
	}
	if actor.IsStaff {
		return true
	}
	return entity.OwnedBy(actor.ID)
}

func requireActor(actor *models.User) error {
	if actor == nil || actor.ID == 0 {
		return unauthorizedErr("authentication required")
	}
	return nil
}

func requireStaff(actor *models.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsStaff {
		return forbiddenErr("admin privileges required")
	}
	return nil
}

// first returns nil, nil when no row matches
func first[T any](q *gorm.DB) (*T, error) {
	var out T
	res := q.Limit(1).Find(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &out, nil
}

// Page is a 1-based page request
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.Limit
}

// paginate applies p to q after counting the unpaginated result. Preloads
// are attached to the page query only.
func paginate[T any](q *gorm.DB, p Page, out *[]T, preloads ...string) (int64, error) {
	p = p.normalize()
	base := q.Session(&gorm.Session{})
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return 0, err
	}
	page := base.Offset(p.offset()).Limit(p.Limit)
	for _, name := range preloads {
		page = page.Preload(name)
	}
	if err := page.Find(out).Error; err != nil {
		return 0, err
	}
	return total, nil
}
