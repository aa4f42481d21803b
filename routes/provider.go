package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/services"
)

// ProviderProfileRequest is accepted as JSON or multipart form. The
// certification document travels as the certification_file part.
type ProviderProfileRequest struct {
	IdentificationType       string `json:"identification_type" form:"identification_type"`
	IdentificationNumber     string `json:"identification_number" form:"identification_number"`
	PhoneNumber              string `json:"phone_number" form:"phone_number"`
	Address                  string `json:"address" form:"address"`
	City                     string `json:"city" form:"city"`
	State                    string `json:"state" form:"state"`
	Country                  string `json:"country" form:"country"`
	CertificationDescription string `json:"certification_description" form:"certification_description"`
	YearsOfExperience        int    `json:"years_of_experience" form:"years_of_experience"`
}

type providerProfilePatchRequest struct {
	IdentificationType       *string `json:"identification_type" form:"identification_type"`
	IdentificationNumber     *string `json:"identification_number" form:"identification_number"`
	PhoneNumber              *string `json:"phone_number" form:"phone_number"`
	Address                  *string `json:"address" form:"address"`
	City                     *string `json:"city" form:"city"`
	State                    *string `json:"state" form:"state"`
	Country                  *string `json:"country" form:"country"`
	CertificationDescription *string `json:"certification_description" form:"certification_description"`
	YearsOfExperience        *int    `json:"years_of_experience" form:"years_of_experience"`
}

type providerRequestBody struct {
	Reason string `json:"request_reason"`
}

type reviewProviderRequestBody struct {
	Status        string `json:"status" binding:"required"`
	AdminResponse string `json:"admin_response"`
}

const certificationField = "certification_file"

func bindForm(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBind(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   services.KindValidation,
			"message": err.Error(),
		})
		return false
	}
	return true
}

// RegisterProviderRoutes registers provider profile and provider request routes
func RegisterProviderRoutes(router *gin.RouterGroup, svc *Services, requireAuth, requireAdmin gin.HandlerFunc) {
	router.Use(requireAuth)

	router.GET("/profile", func(c *gin.Context) {
		profile, err := svc.Verification.GetOwnProfile(c.Request.Context(), currentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, profile)
	})

	router.POST("/profile", func(c *gin.Context) {
		var req ProviderProfileRequest
		if !bindForm(c, &req) {
			return
		}
		file, closeFile, err := formFile(c, certificationField)
		if err != nil {
			respondError(c, err)
			return
		}
		defer closeFile()

		profile, err := svc.Verification.CreateProfile(c.Request.Context(), currentUser(c), services.ProviderProfileInput{
			IdentificationType:       req.IdentificationType,
			IdentificationNumber:     req.IdentificationNumber,
			PhoneNumber:              req.PhoneNumber,
			Address:                  req.Address,
			City:                     req.City,
			State:                    req.State,
			Country:                  req.Country,
			CertificationDescription: req.CertificationDescription,
			YearsOfExperience:        req.YearsOfExperience,
		}, file)
		if err != nil {
			respondError(c, err)
			return
		}
		log.Printf("✅ Provider profile created for user %d", profile.UserID)
		respondOK(c, http.StatusCreated, profile)
	})

	router.PUT("/profile", func(c *gin.Context) {
		var req providerProfilePatchRequest
		if !bindForm(c, &req) {
			return
		}
		file, closeFile, err := formFile(c, certificationField)
		if err != nil {
			respondError(c, err)
			return
		}
		defer closeFile()

		profile, err := svc.Verification.UpdateOwnProfile(c.Request.Context(), currentUser(c), services.ProviderProfilePatch{
			IdentificationType:       req.IdentificationType,
			IdentificationNumber:     req.IdentificationNumber,
			PhoneNumber:              req.PhoneNumber,
			Address:                  req.Address,
			City:                     req.City,
			State:                    req.State,
			Country:                  req.Country,
			CertificationDescription: req.CertificationDescription,
			YearsOfExperience:        req.YearsOfExperience,
		}, file)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, profile)
	})

	router.POST("/request", func(c *gin.Context) {
		var req providerRequestBody
		if !bindJSON(c, &req) {
			return
		}
		pr, err := svc.ProviderRequests.Submit(c.Request.Context(), currentUser(c), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusCreated, pr)
	})

	router.GET("/requests/mine", func(c *gin.Context) {
		list, err := svc.ProviderRequests.ListMine(c.Request.Context(), currentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, list)
	})

	admin := router.Group("/requests", requireAdmin)
	{
		admin.GET("", func(c *gin.Context) {
			page := pageFromQuery(c)
			list, total, err := svc.ProviderRequests.List(c.Request.Context(), currentUser(c), c.Query("status"), page)
			if err != nil {
				respondError(c, err)
				return
			}
			respondList(c, list, total, page)
		})

		admin.GET("/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			pr, err := svc.ProviderRequests.Get(c.Request.Context(), currentUser(c), id)
			if err != nil {
				respondError(c, err)
				return
			}
			respondOK(c, http.StatusOK, pr)
		})

		admin.PUT("/:id", func(c *gin.Context) {
			id, ok := idParam(c, "id")
			if !ok {
				return
			}
			var req reviewProviderRequestBody
			if !bindJSON(c, &req) {
				return
			}
			pr, err := svc.ProviderRequests.Review(c.Request.Context(), currentUser(c), id, req.Status, req.AdminResponse)
			if err != nil {
				respondError(c, err)
				return
			}
			log.Printf("✅ Provider request %d reviewed: %s", pr.ID, pr.Status)
			respondOK(c, http.StatusOK, pr)
		})
	}
}
