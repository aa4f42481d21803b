package routes

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/services"
)

type serviceRequest struct {
	CategoryID    uint     `json:"category_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	PriceType     string   `json:"price_type"`
	Location      string   `json:"location"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	Country       string   `json:"country"`
	AvailableDays []string `json:"available_days"`
}

type servicePatchRequest struct {
	CategoryID    *uint     `json:"category_id"`
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	Price         *float64  `json:"price"`
	PriceType     *string   `json:"price_type"`
	Location      *string   `json:"location"`
	City          *string   `json:"city"`
	State         *string   `json:"state"`
	Country       *string   `json:"country"`
	AvailableDays *[]string `json:"available_days"`
}

const imageField = "image"

func queryFloat(c *gin.Context, key string) (*float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   services.KindValidation,
			"field":   key,
			"message": key + " must be a number",
		})
		return nil, false
	}
	return &v, true
}

// RegisterServiceRoutes registers the public catalog and provider listing management
func RegisterServiceRoutes(router *gin.RouterGroup, svc *Services, requireAuth, optionalAuth gin.HandlerFunc) {
	router.GET("", func(c *gin.Context) {
		minPrice, ok := queryFloat(c, "min_price")
		if !ok {
			return
		}
		maxPrice, ok := queryFloat(c, "max_price")
		if !ok {
			return
		}
		categoryID, _ := strconv.ParseUint(c.Query("category"), 10, 64)

		page := pageFromQuery(c)
		list, total, err := svc.Catalog.ListServices(c.Request.Context(), services.ServiceFilter{
			CategoryID:   uint(categoryID),
			PriceType:    c.Query("price_type"),
			City:         c.Query("city"),
			State:        c.Query("state"),
			Country:      c.Query("country"),
			MinPrice:     minPrice,
			MaxPrice:     maxPrice,
			AvailableDay: c.Query("available_day"),
			Search:       c.Query("search"),
			Ordering:     c.Query("ordering"),
			Page:         page,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, list, total, page)
	})

	router.GET("/:id", optionalAuth, func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		service, err := svc.Catalog.GetService(c.Request.Context(), currentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, service)
	})

	owner := router.Group("", requireAuth)
	{
		owner.POST("", func(c *gin.Context) {
			var req serviceRequest
			if !bindJSON(c, &req) {
				return
			}
			service, err := svc.Catalog.CreateService(c.Request.Context(), currentUser(c), services.ServiceInput{
				CategoryID:    req.CategoryID,
				Title:         req.Title,
				Description:   req.Description,
				Price:         req.Price,
				PriceType:     req.PriceType,
				Location:      req.Location,
				City:          req.City,
				State:         req.State,
				Country:       req.Country,
				AvailableDays: req.AvailableDays,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			log.Printf("✅ Service %d created by provider %d", service.ID, service.ProviderID)
			respondOK(c, http.StatusCreated, service)
		})

		owner.PUT("/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			var req servicePatchRequest
			if !bindJSON(c, &req) {
				return
			}
			service, err := svc.Catalog.UpdateService(c.Request.Context(), currentUser(c), id, services.ServicePatch{
				CategoryID:    req.CategoryID,
				Title:         req.Title,
				Description:   req.Description,
				Price:         req.Price,
				PriceType:     req.PriceType,
				Location:      req.Location,
				City:          req.City,
				State:         req.State,
				Country:       req.Country,
				AvailableDays: req.AvailableDays,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, service)
		})

		owner.DELETE("/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			if err := svc.Catalog.DeleteService(c.Request.Context(), currentUser(c), id); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Service deleted",
			})
		})

		owner.POST("/:id/deactivate", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			service, err := svc.Catalog.DeactivateService(c.Request.Context(), currentUser(c), id)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, service)
		})

		owner.POST("/:id/images", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			file, closeFile, err := formFile(c, imageField)
			if err != nil {
				respondError(c, err)
				return
			}
			defer closeFile()
			if file == nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   services.KindValidation,
					"field":   imageField,
					"message": "an image file is required",
				})
				return
			}

			image, err := svc.Catalog.UploadImage(c.Request.Context(), currentUser(c), id, file)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusCreated, image)
		})

		owner.DELETE("/images/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			if err := svc.Catalog.DeleteImage(c.Request.Context(), currentUser(c), id); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Image deleted",
			})
		})

		owner.PUT("/images/:id/primary", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			image, err := svc.Catalog.SetPrimary(c.Request.Context(), currentUser(c), id)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, image)
		})
	}
}
