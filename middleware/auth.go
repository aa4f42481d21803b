package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/models"
	"service-marketplace-server/services"
	"service-marketplace-server/types"
)

const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
	ContextClaimsKey = "claims"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

// AuthMiddleware validates JWT tokens and sets user context
func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "Authorization header required",
			})
			c.Abort()
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "Token must be in format: Bearer <token>",
			})
			c.Abort()
			return
		}

		user, claims, err := jwtService.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			if !services.IsKind(err, services.KindUnauthorized) {
				log.Printf("❌ AuthMiddleware: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   "internal_error",
					"message": "Internal server error",
				})
				c.Abort()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"message": "Token is invalid or expired",
			})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware is like AuthMiddleware but lets anonymous requests through
func OptionalAuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		user, claims, err := jwtService.Authenticate(c.Request.Context(), tokenString)
		if err == nil {
			c.Set(ContextUserKey, user)
			c.Set(ContextUserIDKey, user.ID)
			c.Set(ContextClaimsKey, claims)
		}
		c.Next()
	}
}

// AdminMiddleware requires a staff user. It must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsStaff {
			log.Printf("🚫 Admin access denied for %s %s", c.Request.Method, c.FullPath())
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "forbidden",
				"message": "Admin privileges required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// CurrentClaims returns the access token claims of the request or nil
func CurrentClaims(c *gin.Context) *types.Claims {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*types.Claims)
	return claims
}
