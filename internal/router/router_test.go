package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/oracle"
	"github.com/javajoker/creatorshield-backend/internal/services"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type RouterTestSuite struct {
	suite.Suite
	router        *gin.Engine
	notifications *services.NotificationService
	creator       models.Actor
	admin         models.Actor
	creatorToken  string
	adminToken    string
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.Require().NoError(database.RunMigrations(db))

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "localhost", Port: "8080", RateLimit: 1000, RateBurst: 1000},
		JWT:         config.JWTConfig{SecretKey: "router-test-secret", Issuer: "creatorshield"},
		Billing:     config.BillingConfig{DefaultCurrency: "INR", FallbackPremium: 500},
		Claims:      config.ClaimsConfig{AtRiskLookahead: 24 * time.Hour, MaxFileSizeMB: 5},
		Frontend:    config.FrontendConfig{BaseURL: "https://app.test"},
		Payment:     config.PaymentConfig{Timeout: 5 * time.Second},
		Email:       config.EmailConfig{SendTimeout: time.Second},
	}

	storage, err := services.NewS3Storage(cfg)
	s.Require().NoError(err)
	riskOracle := oracle.NewStubOracle(cfg.Billing.FallbackPremium)
	riskOracle.SetClaim(true, 90, "income drop matches incident")

	s.notifications = services.NewNotificationService(services.NewSMTPNotifier(cfg.Email), cfg)
	premiums := services.NewPremiumService(db, cfg, riskOracle, services.NewPaymentGateway(cfg), s.notifications)
	analytics := services.NewAnalyticsService(db, nil)
	s.router = Initialize(cfg, Services{
		Policies:  services.NewPolicyService(db, premiums, s.notifications, cfg.Billing.DefaultCurrency),
		Premiums:  premiums,
		Claims:    services.NewClaimService(db, riskOracle, storage, s.notifications, analytics),
		Deadlines: services.NewDeadlineService(db, cfg.Claims.AtRiskLookahead),
		Analytics: analytics,
	})

	s.creator = models.Actor{ID: uuid.New(), Role: models.RoleCreator}
	s.admin = models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	s.creatorToken, err = utils.GenerateJWT(s.creator, time.Hour)
	s.Require().NoError(err)
	s.adminToken, err = utils.GenerateJWT(s.admin, time.Hour)
	s.Require().NoError(err)
}

func (s *RouterTestSuite) TearDownTest() {
	s.notifications.Wait()
}

func (s *RouterTestSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(jsonData)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(req, token)
}

func (s *RouterTestSuite) serve(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp envelope
	if w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (s *RouterTestSuite) submitClaim(token string) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	details, err := json.Marshal(map[string]interface{}{
		"platform":               "youtube",
		"incident_type":          "demonetization",
		"incident_date":          time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339),
		"description":            "Channel demonetized after a copyright strike",
		"reported_earnings_loss": 8000,
		"currency":               "INR",
	})
	s.Require().NoError(err)
	s.Require().NoError(mw.WriteField("claim_details", string(details)))
	s.Require().NoError(mw.WriteField("evidence_notes", "Strike notice attached"))
	part, err := mw.CreateFormFile("files", "strike-notice.pdf")
	s.Require().NoError(err)
	_, err = part.Write([]byte("%PDF-1.4 strike notice"))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/v1/claims", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.serve(req, token)
}

func (s *RouterTestSuite) insure() {
	w, _ := s.do(http.MethodPost, "/v1/policyholders", s.creatorToken, map[string]interface{}{
		"email":            "creator@example.com",
		"display_name":     "Asha",
		"monthly_earnings": 60000,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/v1/policyholders/"+s.creator.ID.String()+"/apply", s.creatorToken, map[string]interface{}{
		"platforms":          []map[string]interface{}{{"name": "youtube", "handle": "@asha", "audience_size": 50000}},
		"estimated_earnings": 60000,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/v1/admin/policyholders/"+s.creator.ID.String()+"/approve", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *RouterTestSuite) TestHealthIsPublic() {
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
}

func (s *RouterTestSuite) TestMissingTokenIsUnauthorized() {
	w, resp := s.do(http.MethodGet, "/v1/policyholders/"+s.creator.ID.String(), "", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	assert.False(s.T(), resp.Success)
	assert.Equal(s.T(), "UNAUTHORIZED", resp.Error.Code)

	w, _ = s.do(http.MethodGet, "/v1/policyholders/"+s.creator.ID.String(), "not-a-jwt", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *RouterTestSuite) TestCreatorCannotReachAdminOperations() {
	w, resp := s.do(http.MethodGet, "/v1/admin/claims", s.creatorToken, nil)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)
	assert.Equal(s.T(), "FORBIDDEN", resp.Error.Code)
}

func (s *RouterTestSuite) TestInvalidPathID() {
	w, resp := s.do(http.MethodGet, "/v1/claims/nope", s.creatorToken, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "VALIDATION_ERROR", resp.Error.Code)
}

func (s *RouterTestSuite) TestDuplicateRegistrationConflicts() {
	body := map[string]interface{}{"email": "creator@example.com"}
	w, _ := s.do(http.MethodPost, "/v1/policyholders", s.creatorToken, body)
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())

	w, resp := s.do(http.MethodPost, "/v1/policyholders", s.creatorToken, body)
	assert.Equal(s.T(), http.StatusConflict, w.Code)
	assert.Equal(s.T(), "CONFLICT", resp.Error.Code)
}

func (s *RouterTestSuite) TestClaimBeforeApprovalIsNotEligible() {
	w, _ := s.do(http.MethodPost, "/v1/policyholders", s.creatorToken, map[string]interface{}{"email": "creator@example.com"})
	require.Equal(s.T(), http.StatusCreated, w.Code)

	w, resp := s.submitClaim(s.creatorToken)
	assert.Equal(s.T(), http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(s.T(), "NOT_ELIGIBLE", resp.Error.Code)
}

func (s *RouterTestSuite) TestClaimLifecycleOverHTTP() {
	s.insure()

	w, resp := s.submitClaim(s.creatorToken)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var submitted struct {
		Claim models.Claim `json:"claim"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &submitted))
	claimID := submitted.Claim.ID.String()
	assert.Len(s.T(), submitted.Claim.Evidence, 1)
	assert.Equal(s.T(), models.ClaimStatusSubmitted, submitted.Claim.CurrentStatus())

	for _, step := range []string{"start-review", "ai-review"} {
		w, _ = s.do(http.MethodPost, "/v1/admin/claims/"+claimID+"/"+step, s.adminToken, nil)
		s.Require().Equal(http.StatusOK, w.Code, step+": "+w.Body.String())
	}

	// Skipping past a decided claim is an invalid state.
	w, resp = s.do(http.MethodPost, "/v1/admin/claims/"+claimID+"/paid", s.adminToken, nil)
	assert.Equal(s.T(), http.StatusConflict, w.Code)
	assert.Equal(s.T(), "INVALID_STATE", resp.Error.Code)

	w, _ = s.do(http.MethodPost, "/v1/admin/claims/"+claimID+"/review", s.adminToken, map[string]interface{}{
		"is_valid":      true,
		"notes":         "Verified with platform statement",
		"payout_amount": 5000,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, resp = s.do(http.MethodPost, "/v1/admin/claims/"+claimID+"/paid", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var paid struct {
		Claim models.Claim `json:"claim"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &paid))
	assert.Equal(s.T(), models.ClaimStatusPaid, paid.Claim.CurrentStatus())
	assert.Equal(s.T(), 5000.0, paid.Claim.Evaluation.PayoutAmount)

	w, resp = s.do(http.MethodGet, "/v1/policyholders/"+s.creator.ID.String()+"/claims", s.creatorToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(s.T(), "1", w.Header().Get("X-Total-Count"))

	w, resp = s.do(http.MethodGet, "/v1/admin/analytics/claims", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var analytics struct {
		Analytics services.ClaimAnalytics `json:"analytics"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &analytics))
	assert.Equal(s.T(), 5000.0, analytics.Analytics.AveragePayout)
}

func (s *RouterTestSuite) TestDeadlineWindowParsing() {
	w, resp := s.do(http.MethodGet, "/v1/admin/deadlines/claims?window=soon", s.adminToken, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "VALIDATION_ERROR", resp.Error.Code)

	w, _ = s.do(http.MethodGet, "/v1/admin/deadlines/claims?window=48h", s.adminToken, nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/v1/admin/deadlines/premiums", s.adminToken, nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
}

func (s *RouterTestSuite) TestPremiumEndpoints() {
	s.insure()

	w, resp := s.do(http.MethodGet, "/v1/policyholders/"+s.creator.ID.String()+"/premium", s.creatorToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var got struct {
		Premium models.Premium `json:"premium"`
	}
	s.Require().NoError(json.Unmarshal(resp.Data, &got))
	premiumID := got.Premium.ID.String()

	w, _ = s.do(http.MethodPost, "/v1/premiums/"+premiumID+"/pay", s.creatorToken, map[string]interface{}{
		"payment_method": "pm_card_visa",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, resp = s.do(http.MethodPut, "/v1/premiums/"+premiumID+"/billing-cycle", s.creatorToken, map[string]interface{}{
		"billing_cycle": "weekly",
	})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "VALIDATION_ERROR", resp.Error.Code)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
