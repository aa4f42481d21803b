package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/middleware"
	"service-marketplace-server/models"
	"service-marketplace-server/services"
)

// RegisterRequest represents the registration request
type RegisterRequest struct {
	Email           string `json:"email" binding:"required"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password" binding:"required"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceID string `json:"device_id"`
}

// RefreshRequest carries an opaque refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user"`
}

type passwordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

type passwordResetConfirmRequest struct {
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
}

// RegisterAuthRoutes registers authentication routes
func RegisterAuthRoutes(router *gin.RouterGroup, svc *Services, requireAuth gin.HandlerFunc) {
	router.POST("/register", register(svc))
	router.POST("/login", login(svc))
	router.POST("/refresh", refreshToken(svc))
	router.POST("/logout", requireAuth, logout(svc))
	router.POST("/password-reset", requestPasswordReset(svc))
	router.POST("/password-reset/confirm", confirmPasswordReset(svc))
}

func register(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if !bindJSON(c, &req) {
			return
		}

		user, err := svc.Identity.Register(c.Request.Context(), services.RegisterInput{
			Email:           req.Email,
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			Password:        req.Password,
			PasswordConfirm: req.PasswordConfirm,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		log.Printf("✅ New user registered: %d", user.ID)
		respondOK(c, http.StatusCreated, user)
	}
}

func login(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !bindJSON(c, &req) {
			return
		}

		deviceID := req.DeviceID
		if deviceID == "" {
			deviceID = c.GetHeader("X-Device-ID")
		}
		user, pair, err := svc.Identity.Login(c.Request.Context(), req.Email, req.Password, services.DeviceInfo{
			DeviceID:  deviceID,
			UserAgent: c.Request.UserAgent(),
			IPAddress: c.ClientIP(),
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Token:        pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
			User:         user,
		})
	}
}

func refreshToken(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if !bindJSON(c, &req) {
			return
		}

		pair, err := svc.Identity.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":         pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_in":    pair.ExpiresIn,
		})
	}
}

func logout(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		// refresh token is optional; the access token is revoked either way
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if !bindOptionalJSON(c, &req) {
			return
		}

		err := svc.Identity.Logout(c.Request.Context(), currentUser(c), req.RefreshToken, middleware.CurrentClaims(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Logged out successfully",
		})
	}
}

func requestPasswordReset(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req passwordResetRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := svc.Identity.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
			log.Printf("❌ Password reset request failed: %v", err)
		}
		// same answer whether or not the account exists
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "If the account exists, a reset link has been sent",
		})
	}
}

func confirmPasswordReset(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req passwordResetConfirmRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := svc.Identity.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword, req.PasswordConfirm); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Password has been reset",
		})
	}
}
