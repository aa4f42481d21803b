package services

import (
	"fmt"

	"gorm.io/gorm"

	"service-marketplace-server/models"
)

// transitionRole is the only writer of users.role. It must run inside the
// caller's transaction so the role and its log entry commit together.
func transitionRole(tx *gorm.DB, user *models.User, newRole models.UserRole, reason string, changedBy *uint) (*models.UserRoleChangeLog, error) {
	if user.IsSuperuser {
		return nil, forbiddenErr("the role of a superuser cannot be changed")
	}

	previous := user.Role
	res := tx.Model(&models.User{}).
		Where("id = ? AND role = ?", user.ID, previous).
		Update("role", newRole)
	if res.Error != nil {
		return nil, fmt.Errorf("update role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, conflictErr("the user's role changed concurrently")
	}

	entry := &models.UserRoleChangeLog{
		UserID:       user.ID,
		PreviousRole: previous,
		NewRole:      newRole,
		Reason:       reason,
		ChangedByID:  changedBy,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append role change log: %w", err)
	}

	user.Role = newRole
	return entry, nil
}
