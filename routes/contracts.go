package routes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/models"
	"service-marketplace-server/services"
)

type contractRequest struct {
	ServiceID   uint   `json:"service_id" binding:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type contractPatchRequest struct {
	Description *string `json:"description"`
	Location    *string `json:"location"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates
func parseDate(c *gin.Context, field, raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   services.KindValidation,
		"field":   field,
		"message": field + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp",
	})
	return nil, false
}

// RegisterContractRoutes registers contract routes. The group must already require auth.
func RegisterContractRoutes(router *gin.RouterGroup, svc *Services) {
	router.GET("", func(c *gin.Context) {
		page := pageFromQuery(c)
		list, total, err := svc.Contracts.List(c.Request.Context(), currentUser(c), c.Query("status"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, list, total, page)
	})

	router.POST("", func(c *gin.Context) {
		var req contractRequest
		if !bindJSON(c, &req) {
			return
		}
		start, ok := parseDate(c, "start_date", req.StartDate)
		if !ok {
			return
		}
		end, ok := parseDate(c, "end_date", req.EndDate)
		if !ok {
			return
		}
		in := services.ContractInput{
			ServiceID:   req.ServiceID,
			Description: req.Description,
			Location:    req.Location,
			EndDate:     end,
		}
		if start != nil {
			in.StartDate = *start
		}

		contract, err := svc.Contracts.Create(c.Request.Context(), currentUser(c), in)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusCreated, contract)
	})

	router.GET("/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		contract, err := svc.Contracts.Get(c.Request.Context(), currentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, contract)
	})

	router.PATCH("/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req contractPatchRequest
		if !bindJSON(c, &req) {
			return
		}
		patch := services.ContractPatch{Description: req.Description, Location: req.Location}
		if req.StartDate != nil {
			if patch.StartDate, ok = parseDate(c, "start_date", *req.StartDate); !ok {
				return
			}
			if patch.StartDate == nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   services.KindValidation,
					"field":   "start_date",
					"message": "start_date cannot be cleared",
				})
				return
			}
		}
		if req.EndDate != nil {
			if patch.EndDate, ok = parseDate(c, "end_date", *req.EndDate); !ok {
				return
			}
		}

		contract, err := svc.Contracts.Update(c.Request.Context(), currentUser(c), id, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, contract)
	})

	router.POST("/:id/accept", contractAction(func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
		return svc.Contracts.Accept(c.Request.Context(), actor, id)
	}))
	router.POST("/:id/reject", contractAction(func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
		var req reasonRequest
		if !bindOptionalJSON(c, &req) {
			return nil, errResponded
		}
		return svc.Contracts.Reject(c.Request.Context(), actor, id, req.Reason)
	}))
	router.POST("/:id/start", contractAction(func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
		return svc.Contracts.Start(c.Request.Context(), actor, id)
	}))
	router.POST("/:id/complete", contractAction(func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
		return svc.Contracts.Complete(c.Request.Context(), actor, id)
	}))
	router.POST("/:id/cancel", contractAction(func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
		var req reasonRequest
		if !bindOptionalJSON(c, &req) {
			return nil, errResponded
		}
		return svc.Contracts.Cancel(c.Request.Context(), actor, id, req.Reason)
	}))
	router.POST("/:id/review", contractAction(func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error) {
		var req reviewRequest
		if !bindOptionalJSON(c, &req) {
			return nil, errResponded
		}
		return svc.Contracts.Review(c.Request.Context(), actor, id, req.Rating, req.Review)
	}))
}

// errResponded means the handler already wrote the response
var errResponded = errors.New("response already written")

// bindOptionalJSON binds a body when one was sent
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}

// contractAction adapts a status transition into a handler
func contractAction(run func(c *gin.Context, actor *models.User, id uint) (*models.ServiceContract, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		contract, err := run(c, currentUser(c), id)
		if errors.Is(err, errResponded) {
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, contract)
	}
}
