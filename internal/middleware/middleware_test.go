package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

func newProtectedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{AuthRequired()}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, actor.String())
	})
	r.GET("/whoami", chain...)
	return r
}

func request(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	r := newProtectedRouter()

	actor := models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	token, err := utils.GenerateJWT(actor, time.Hour)
	require.NoError(t, err)

	w := request(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, actor.String(), w.Body.String())

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer not-a-token"} {
		w := request(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}

	expired, err := utils.GenerateJWT(actor, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(r, "Bearer "+expired).Code)
}

func TestAuthRequiredRejectsUnknownRole(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	r := newProtectedRouter()

	token, err := utils.GenerateJWT(models.Actor{ID: uuid.New(), Role: "auditor"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(r, "Bearer "+token).Code)
}

func TestRateLimitIsPerActor(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	limiter := NewRateLimiter(rate.Every(time.Hour), 1)
	r := newProtectedRouter(limiter.Middleware())

	first, err := utils.GenerateJWT(models.Actor{ID: uuid.New(), Role: models.RoleCreator}, time.Hour)
	require.NoError(t, err)
	second, err := utils.GenerateJWT(models.Actor{ID: uuid.New(), Role: models.RoleCreator}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, request(r, "Bearer "+first).Code)
	limited := request(r, "Bearer "+first)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "3600", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, request(r, "Bearer "+second).Code)
}
