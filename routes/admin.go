package routes

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/services"
)

type verifyProviderRequest struct {
	IsVerified *bool  `json:"is_verified" binding:"required"`
	AdminNotes string `json:"admin_notes"`
}

type serviceStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	AdminComment string `json:"admin_comment"`
}

// RegisterAdminRoutes registers admin routes. The group must already require a staff user.
func RegisterAdminRoutes(router *gin.RouterGroup, svc *Services) {
	router.GET("/dashboard", func(c *gin.Context) {
		stats, err := svc.Dashboard.Stats(c.Request.Context(), currentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, stats)
	})

	router.GET("/providers", func(c *gin.Context) {
		var verified *bool
		if raw := c.Query("verified"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   services.KindValidation,
					"field":   "verified",
					"message": "verified must be true or false",
				})
				return
			}
			verified = &v
		}

		page := pageFromQuery(c)
		profiles, total, err := svc.Verification.AdminListProviders(c.Request.Context(), currentUser(c), verified, page)
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, profiles, total, page)
	})

	router.GET("/providers/:id/verify", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		profile, err := svc.Verification.AdminGetProvider(c.Request.Context(), currentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, profile)
	})

	router.PUT("/providers/:id/verify", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req verifyProviderRequest
		if !bindJSON(c, &req) {
			return
		}
		profile, err := svc.Verification.SetVerification(c.Request.Context(), currentUser(c), id, *req.IsVerified, req.AdminNotes)
		if err != nil {
			respondError(c, err)
			return
		}
		log.Printf("✅ Provider %d verification set to %t", id, profile.IsVerified)
		respondOK(c, http.StatusOK, profile)
	})

	router.GET("/services", func(c *gin.Context) {
		page := pageFromQuery(c)
		list, total, err := svc.Catalog.AdminListServices(c.Request.Context(), currentUser(c), c.Query("status"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, list, total, page)
	})

	router.PUT("/services/:id/approve", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req serviceStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		service, err := svc.Catalog.AdminSetStatus(c.Request.Context(), currentUser(c), id, req.Status, req.AdminComment)
		if err != nil {
			respondError(c, err)
			return
		}
		log.Printf("✅ Service %d status set to %s", service.ID, service.Status)
		respondOK(c, http.StatusOK, service)
	})
}
