package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/services"
)

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
}

type changeRoleRequest struct {
	Role   string `json:"role" binding:"required"`
	Reason string `json:"reason"`
}

// RegisterUserRoutes registers self-service profile routes and admin role management
func RegisterUserRoutes(router *gin.RouterGroup, svc *Services, requireAuth, requireAdmin gin.HandlerFunc) {
	profile := router.Group("/profile", requireAuth)
	{
		profile.GET("", func(c *gin.Context) {
			user, err := svc.Identity.GetProfile(c.Request.Context(), currentUser(c))
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, user)
		})

		profile.PUT("", func(c *gin.Context) {
			var req updateProfileRequest
			if !bindJSON(c, &req) {
				return
			}
			user, err := svc.Identity.UpdateProfile(c.Request.Context(), currentUser(c), services.ProfilePatch{
				FirstName: req.FirstName,
				LastName:  req.LastName,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, user)
		})

		profile.PUT("/password", func(c *gin.Context) {
			var req changePasswordRequest
			if !bindJSON(c, &req) {
				return
			}
			err := svc.Identity.ChangePassword(c.Request.Context(), currentUser(c), req.OldPassword, req.NewPassword, req.PasswordConfirm)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Password changed. Please sign in again.",
			})
		})
	}

	users := router.Group("/users", requireAuth, requireAdmin)
	{
		users.PUT("/:id/role", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			var req changeRoleRequest
			if !bindJSON(c, &req) {
				return
			}
			entry, err := svc.Identity.ChangeRole(c.Request.Context(), currentUser(c), id, req.Role, req.Reason)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, entry)
		})

		users.GET("/:id/role-changes", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			entries, err := svc.Identity.ListRoleChanges(c.Request.Context(), currentUser(c), id)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, entries)
		})
	}
}
