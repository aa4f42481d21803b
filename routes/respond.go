package routes

import (
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"service-marketplace-server/middleware"
	"service-marketplace-server/models"
	"service-marketplace-server/services"
	"service-marketplace-server/storage"
)

var statusByKind = map[services.Kind]int{
	services.KindValidation:   http.StatusBadRequest,
	services.KindConflict:     http.StatusConflict,
	services.KindForbidden:    http.StatusForbidden,
	services.KindNotFound:     http.StatusNotFound,
	services.KindUnauthorized: http.StatusUnauthorized,
}

// respondError maps domain errors to their status and hides everything else
func respondError(c *gin.Context, err error) {
	var se *services.Error
	if errors.As(err, &se) {
		status, ok := statusByKind[se.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		body := gin.H{
			"success": false,
			"error":   se.Kind,
			"message": se.Message,
		}
		if se.Field != "" {
			body["field"] = se.Field
		}
		c.JSON(status, body)
		return
	}

	log.Printf("❌ %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "internal_error",
		"message": "Internal server error",
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondList(c *gin.Context, data interface{}, total int64, page services.Page) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"total":   total,
		"page":    page.Page,
		"limit":   page.Limit,
	})
}

// bindJSON answers 400 itself when the body does not bind
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   services.KindValidation,
			"message": err.Error(),
		})
		return false
	}
	return true
}

func currentUser(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

// idParam parses a positive numeric path parameter or answers 400
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   services.KindValidation,
			"message": fmt.Sprintf("invalid %s", name),
		})
		return 0, false
	}
	return uint(id), true
}

func pageFromQuery(c *gin.Context) services.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return services.Page{Page: page, Limit: limit}
}

// formFile opens an optional multipart upload. The returned closer is never nil.
func formFile(c *gin.Context, field string) (*storage.File, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, err
	}
	return openUpload(header)
}

func openUpload(header *multipart.FileHeader) (*storage.File, func(), error) {
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}
	contentType := header.Header.Get("Content-Type")
	return &storage.File{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Reader:      f,
	}, func() { f.Close() }, nil
}
