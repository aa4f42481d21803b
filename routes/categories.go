package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/services"
)

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// RegisterCategoryRoutes registers category routes. Reads are public.
func RegisterCategoryRoutes(router *gin.RouterGroup, svc *Services, requireAuth, requireAdmin gin.HandlerFunc) {
	router.GET("", func(c *gin.Context) {
		categories, err := svc.Catalog.ListCategories(c.Request.Context(), c.Query("search"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, categories)
	})

	router.GET("/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		category, err := svc.Catalog.GetCategory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, category)
	})

	admin := router.Group("", requireAuth, requireAdmin)
	{
		admin.POST("", func(c *gin.Context) {
			var req categoryRequest
			if !bindJSON(c, &req) {
				return
			}
			category, err := svc.Catalog.CreateCategory(c.Request.Context(), currentUser(c), services.CategoryInput{
				Name:        req.Name,
				Description: req.Description,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusCreated, category)
		})

		admin.PUT("/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			var req categoryRequest
			if !bindJSON(c, &req) {
				return
			}
			category, err := svc.Catalog.UpdateCategory(c.Request.Context(), currentUser(c), id, services.CategoryInput{
				Name:        req.Name,
				Description: req.Description,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, category)
		})

		admin.DELETE("/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			if err := svc.Catalog.DeleteCategory(c.Request.Context(), currentUser(c), id); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Category deleted",
			})
		})
	}
}
