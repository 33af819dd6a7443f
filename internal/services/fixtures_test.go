package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creatorshield-backend/internal/apperr"
	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/database"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/oracle"
)

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject, Body: body})
	return n.err
}

func (n *recordingNotifier) Messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type memoryStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	failOn  string
	count   int
	// afterUpload runs once a file is stored, outside the lock.
	afterUpload func(FileUpload)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{files: map[string][]byte{}}
}

func (m *memoryStore) Upload(_ context.Context, file FileUpload) (StoredFile, error) {
	stored, err := m.put(file)
	if err == nil && m.afterUpload != nil {
		m.afterUpload(file)
	}
	return stored, err
}

func (m *memoryStore) put(file FileUpload) (StoredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && file.FileName == m.failOn {
		return StoredFile{}, errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return StoredFile{}, err
	}
	m.count++
	key := fmt.Sprintf("claims/evidence/%d-%s", m.count, file.FileName)
	m.files[key] = data
	return StoredFile{URL: "https://files.test/" + key, Key: key, Size: int64(len(data)), MimeType: file.ContentType}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryStore) Stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) InvalidateClaimAnalytics(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

func (c *countingInvalidator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type scriptedGateway struct {
	mu       sync.Mutex
	decline  bool
	pending  bool
	requests []ChargeRequest
	lookups  []string
}

func (g *scriptedGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.decline {
		return ChargeResult{Status: "requires_payment_method"}, fmt.Errorf("%w: card declined", ErrChargeDeclined)
	}
	id := fmt.Sprintf("pi_%d", len(g.requests))
	if g.pending {
		return ChargeResult{TransactionID: id, Status: "processing", Pending: true}, nil
	}
	return ChargeResult{TransactionID: id, Status: "succeeded"}, nil
}

func (g *scriptedGateway) Lookup(_ context.Context, transactionID string) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups = append(g.lookups, transactionID)
	switch {
	case g.decline:
		return ChargeResult{TransactionID: transactionID, Status: "requires_payment_method"}, fmt.Errorf("%w: card declined", ErrChargeDeclined)
	case g.pending:
		return ChargeResult{TransactionID: transactionID, Status: "processing", Pending: true}, nil
	}
	return ChargeResult{TransactionID: transactionID, Status: "succeeded"}, nil
}

func (g *scriptedGateway) Lookups() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.lookups...)
}

func (g *scriptedGateway) Requests() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChargeRequest(nil), g.requests...)
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Payment:     config.PaymentConfig{Timeout: 5 * time.Second},
		Email:       config.EmailConfig{SendTimeout: time.Second},
		Billing:     config.BillingConfig{DefaultCurrency: "INR", FallbackPremium: 500},
		Claims:      config.ClaimsConfig{AtRiskLookahead: 24 * time.Hour, MaxFileSizeMB: 5},
		Frontend:    config.FrontendConfig{BaseURL: "https://app.test"},
	}
}

func openTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, database.RunMigrations(db)
}

// engineSuite wires every engine service against an in-memory store and
// deterministic collaborators.
type engineSuite struct {
	suite.Suite

	db            *gorm.DB
	cfg           *config.Config
	now           time.Time
	oracle        *oracle.StubOracle
	notifier      *recordingNotifier
	store         *memoryStore
	gateway       *scriptedGateway
	notifications *NotificationService
	invalidations *countingInvalidator

	premiums  *PremiumService
	policies  *PolicyService
	claims    *ClaimService
	deadlines *DeadlineService
	analytics *AnalyticsService

	creator models.Actor
	admin   models.Actor
}

func (s *engineSuite) SetupTest() {
	db, err := openTestDB()
	s.Require().NoError(err)
	s.db = db
	s.cfg = testConfig()
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.oracle = oracle.NewStubOracle(s.cfg.Billing.FallbackPremium)
	s.notifier = &recordingNotifier{}
	s.store = newMemoryStore()
	s.gateway = &scriptedGateway{}
	s.notifications = NewNotificationService(s.notifier, s.cfg)

	s.premiums = NewPremiumService(db, s.cfg, s.oracle, s.gateway, s.notifications)
	s.policies = NewPolicyService(db, s.premiums, s.notifications, s.cfg.Billing.DefaultCurrency)
	s.invalidations = &countingInvalidator{}
	s.claims = NewClaimService(db, s.oracle, s.store, s.notifications, s.invalidations)
	s.deadlines = NewDeadlineService(db, s.cfg.Claims.AtRiskLookahead)
	s.analytics = NewAnalyticsService(db, nil)

	clock := func() time.Time { return s.now }
	s.premiums.SetClock(clock)
	s.policies.SetClock(clock)
	s.claims.SetClock(clock)
	s.deadlines.SetClock(clock)

	s.creator = models.Actor{ID: uuid.New(), Role: models.RoleCreator}
	s.admin = models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
}

func (s *engineSuite) TearDownTest() {
	s.notifications.Wait()
}

func (s *engineSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *engineSuite) requireKind(err error, kind apperr.Kind) {
	s.T().Helper()
	s.Require().Error(err)
	s.Require().Equal(kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func newCreator() models.Actor {
	return models.Actor{ID: uuid.New(), Role: models.RoleCreator}
}

func (s *engineSuite) register(actor models.Actor, earnings float64) *models.Policyholder {
	holder, err := s.policies.Register(context.Background(), actor, &RegisterPolicyholderRequest{
		Email:           fmt.Sprintf("%s@creators.test", actor.ID.String()[:8]),
		DisplayName:     "Asha",
		MonthlyEarnings: earnings,
	})
	s.Require().NoError(err)
	return holder
}

func scenarioApplication() *ApplyRequest {
	return &ApplyRequest{
		EstimatedEarnings: 97000,
		Platforms: []PlatformInput{{
			Name:            "YouTube",
			Handle:          "@asha",
			AudienceSize:    50000,
			ContentCategory: "education",
			RiskHistory: []models.InfractionRecord{{
				Type:       "copyright_strike",
				OccurredAt: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
			}},
		}},
	}
}

func (s *engineSuite) apply(actor models.Actor) (*models.Policyholder, *models.Premium) {
	holder, premium, err := s.policies.Apply(context.Background(), actor, actor.ID, scenarioApplication())
	s.Require().NoError(err)
	return holder, premium
}

// insured registers, applies and approves actor.
func (s *engineSuite) insured(actor models.Actor) (*models.Policyholder, *models.Premium) {
	s.register(actor, 97000)
	_, premium := s.apply(actor)
	holder, err := s.policies.Approve(context.Background(), s.admin, actor.ID)
	s.Require().NoError(err)
	return holder, premium
}

func evidence(names ...string) []FileUpload {
	files := make([]FileUpload, 0, len(names))
	for _, name := range names {
		files = append(files, FileUpload{
			FileName:    name,
			ContentType: "image/png",
			Size:        int64(len(name)),
			Description: "analytics dashboard",
			Body:        strings.NewReader(name),
		})
	}
	return files
}

func claimRequest(files ...FileUpload) *SubmitClaimRequest {
	return &SubmitClaimRequest{
		Details: models.ClaimDetails{
			Platform:             "youtube",
			IncidentType:         "demonetization",
			IncidentDate:         time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
			Description:          "Channel demonetized after a mistaken copyright claim on three videos.",
			ReportedEarningsLoss: 8000,
			Currency:             "INR",
		},
		Notes: "Revenue graph attached",
		Files: files,
	}
}

func (s *engineSuite) submitClaim(actor models.Actor) *models.Claim {
	claim, err := s.claims.Submit(context.Background(), actor, claimRequest(evidence("revenue.png")...))
	s.Require().NoError(err)
	return claim
}

func (s *engineSuite) reload(id uuid.UUID) *models.Claim {
	claim, err := loadClaim(s.db, id)
	s.Require().NoError(err)
	return claim
}

func statuses(claim *models.Claim) []models.ClaimStatus {
	out := make([]models.ClaimStatus, 0, len(claim.StatusHistory))
	for _, e := range claim.StatusHistory {
		out = append(out, e.Status)
	}
	return out
}

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }
func stringPtr(v string) *string  { return &v }
