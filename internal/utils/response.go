// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindForbidden:      http.StatusForbidden,
	apperr.KindInvalidState:   http.StatusConflict,
	apperr.KindStateConflict:  http.StatusConflict,
	apperr.KindConflict:       http.StatusConflict,
	apperr.KindNotEligible:    http.StatusUnprocessableEntity,
	apperr.KindNoActivePolicy: http.StatusUnprocessableEntity,
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindPayment:        http.StatusPaymentRequired,
	apperr.KindStorage:        http.StatusBadGateway,
	apperr.KindPersistence:    http.StatusInternalServerError,
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// ErrorFromApp writes err using its kind. Untyped errors are 500s and their
// text is not exposed.
func ErrorFromApp(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	message := "Internal server error"
	var details interface{}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
		details = appErr.Details
	}

	status := StatusForKind(kind)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	if kind == "" {
		kind = apperr.KindPersistence
	}
	ErrorResponse(c, status, string(kind), message, details)
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	if message == "" {
		message = "Invalid request"
	}
	ErrorResponse(c, http.StatusBadRequest, string(apperr.KindValidation), message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication required"
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}
