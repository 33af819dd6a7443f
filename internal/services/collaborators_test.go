package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/javajoker/creatorshield-backend/internal/config"
	"github.com/javajoker/creatorshield-backend/internal/models"
)

type blockingNotifier struct{}

func (blockingNotifier) Send(ctx context.Context, _, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNotificationDispatchIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Email.SendTimeout = 20 * time.Millisecond
	notifications := NewNotificationService(blockingNotifier{}, cfg)

	start := time.Now()
	notifications.PolicyApproved(&models.Policyholder{Email: "a@creators.test", DisplayName: "A"})
	notifications.Wait()
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotificationTemplates(t *testing.T) {
	notifier := &recordingNotifier{}
	notifications := NewNotificationService(notifier, testConfig())
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	holder := &models.Policyholder{
		Email:       "a@creators.test",
		DisplayName: "Asha",
		InsuranceStatus: models.InsuranceStatus{
			PolicyStartDate: &now,
			RejectionReason: "Unverified audience",
		},
	}

	notifications.PolicyApproved(holder)
	notifications.PolicyRejected(holder)
	notifications.Wait()

	messages := notifier.Messages()
	require.Len(t, messages, 2)
	bodies := messages[0].Body + messages[1].Body
	assert.Contains(t, bodies, "02 Mar 2026")
	assert.Contains(t, bodies, "https://app.test/policy")
	assert.Contains(t, bodies, "Unverified audience")
}

func TestSimulatedGateway(t *testing.T) {
	gateway := NewPaymentGateway(testConfig())

	result, err := gateway.Charge(context.Background(), ChargeRequest{Amount: 500, Currency: "INR", Method: "pm_card_visa"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.TransactionID, "sim_"))

	_, err = gateway.Charge(context.Background(), ChargeRequest{Amount: 500, Currency: "INR", Method: "decline"})
	assert.True(t, errors.Is(err, ErrChargeDeclined))

	result, err = gateway.Charge(context.Background(), ChargeRequest{Amount: 500, Currency: "INR", Method: "processing"})
	require.NoError(t, err)
	assert.True(t, result.Pending)
	settled, err := gateway.Lookup(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.False(t, settled.Pending)
}

func TestIntentResult(t *testing.T) {
	result, err := intentResult(&stripe.PaymentIntent{ID: "pi_ok", Status: stripe.PaymentIntentStatusSucceeded})
	require.NoError(t, err)
	assert.False(t, result.Pending)

	result, err = intentResult(&stripe.PaymentIntent{ID: "pi_wait", Status: stripe.PaymentIntentStatusProcessing})
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, "processing", result.Status)

	result, err = intentResult(&stripe.PaymentIntent{ID: "pi_bad", Status: stripe.PaymentIntentStatusRequiresPaymentMethod})
	assert.True(t, errors.Is(err, ErrChargeDeclined))
	assert.Equal(t, "pi_bad", result.TransactionID)
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), toMinorUnits(500))
	assert.Equal(t, int64(1999), toMinorUnits(19.99))
}

func TestLocalStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Server = config.ServerConfig{Host: "localhost", Port: "8080"}
	storage, err := NewS3Storage(cfg)
	require.NoError(t, err)

	stored, err := storage.Upload(context.Background(), FileUpload{
		FileName:    "Revenue.PNG",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("data"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Key, "claims/evidence/"))
	assert.True(t, strings.HasSuffix(stored.Key, ".png"))
	assert.Equal(t, "http://localhost:8080/uploads/"+stored.Key, stored.URL)
	assert.Equal(t, int64(4), stored.Size)
	assert.NoError(t, storage.Delete(context.Background(), stored.Key))

	_, err = storage.Upload(context.Background(), FileUpload{FileName: "payload.exe", Size: 4, Body: strings.NewReader("data")})
	assert.Error(t, err)

	_, err = storage.Upload(context.Background(), FileUpload{FileName: "huge.pdf", Size: 6 * 1024 * 1024, Body: strings.NewReader("")})
	assert.Error(t, err)
}
