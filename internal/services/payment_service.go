// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/javajoker/creatorshield-backend/internal/config"
)

// ErrChargeDeclined is returned by gateways when the charge did not succeed.
var ErrChargeDeclined = errors.New("charge declined")

type ChargeRequest struct {
	Amount         float64
	Currency       string
	Method         string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// ChargeResult is the gateway's answer. Pending means the charge was
// accepted but has not settled; it must not be treated as paid.
type ChargeResult struct {
	TransactionID string
	Status        string
	Pending       bool
}

// PaymentGateway charges premiums. Implementations must honour the
// idempotency key so a retried request never double-charges.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	// Lookup reports the current outcome of an earlier pending charge.
	Lookup(ctx context.Context, transactionID string) (ChargeResult, error)
}

// NewPaymentGateway returns a Stripe gateway when a key is configured and
// a simulated one otherwise.
func NewPaymentGateway(cfg *config.Config) PaymentGateway {
	if cfg.Payment.StripeSecretKey == "" {
		return &SimulatedGateway{}
	}
	return NewStripeGateway(cfg.Payment.StripeSecretKey)
}

type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	// Initialize Stripe
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Method),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return intentResult(pi)
}

func (g *StripeGateway) Lookup(ctx context.Context, transactionID string) (ChargeResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(transactionID, params)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("failed to fetch payment intent: %w", err)
	}
	return intentResult(pi)
}

// intentResult maps a payment intent onto a charge outcome. Processing
// intents settle asynchronously and stay pending.
func intentResult(pi *stripe.PaymentIntent) (ChargeResult, error) {
	result := ChargeResult{TransactionID: pi.ID, Status: string(pi.Status)}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return result, nil
	case stripe.PaymentIntentStatusProcessing:
		result.Pending = true
		return result, nil
	default:
		return result, fmt.Errorf("%w: payment intent status %s", ErrChargeDeclined, pi.Status)
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// SimulatedGateway approves every charge except the "decline" method; the
// "processing" method leaves the charge pending until it is looked up. It
// is used for local development when no Stripe key is configured.
type SimulatedGateway struct{}

func (g *SimulatedGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	switch req.Method {
	case "decline":
		return ChargeResult{Status: "declined"}, fmt.Errorf("%w: simulated decline", ErrChargeDeclined)
	case "processing":
		return ChargeResult{TransactionID: "sim_" + uuid.NewString(), Status: "processing", Pending: true}, nil
	}
	return ChargeResult{TransactionID: "sim_" + uuid.NewString(), Status: "succeeded"}, nil
}

func (g *SimulatedGateway) Lookup(_ context.Context, transactionID string) (ChargeResult, error) {
	return ChargeResult{TransactionID: transactionID, Status: "succeeded"}, nil
}
