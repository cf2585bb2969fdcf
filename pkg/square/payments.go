package square

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqoption "github.com/square/square-go-sdk/option"
)

const defaultCurrency = "USD"

type paymentsAPI interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

// StageCharge collects one escrow stage from a stored card or nonce.
type StageCharge struct {
	Amount         decimal.Decimal
	Currency       string
	SourceID       string
	CustomerID     string
	Reference      string
	Note           string
	IdempotencyKey string
}

// Receipt is the part of a Square payment the settlement flow cares about.
type Receipt struct {
	PaymentID  string
	Status     string
	ReceiptURL string
}

// Cents converts a 2dp amount to minor units, rounding half away from zero.
func Cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Charge creates a payment. A blank idempotency key is derived from the
// reference so a retried stage charge stays distinguishable in Square logs.
func (c *Client) Charge(ctx context.Context, charge StageCharge) (*Receipt, error) {
	key := strings.TrimSpace(charge.IdempotencyKey)
	if key == "" {
		key = idempotencyKey(charge.Reference)
	}
	req := c.paymentRequest(charge, key)

	ctx = c.logger.WithFields(ctx, map[string]any{
		"square_op":    "payments.create",
		"reference_id": charge.Reference,
		"amount_cents": Cents(charge.Amount),
	})
	resp, err := c.payments.Create(ctx, req)
	if err != nil {
		mapped := mapError(err, "create payment")
		c.logger.Error(ctx, "square.payment.failed", mapped)
		return nil, mapped
	}

	payment := resp.GetPayment()
	receipt := &Receipt{
		PaymentID:  deref(payment.GetID()),
		Status:     deref(payment.GetStatus()),
		ReceiptURL: deref(payment.GetReceiptURL()),
	}
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"payment_id":     receipt.PaymentID,
		"payment_status": receipt.Status,
	}), "square.payment.created")
	return receipt, nil
}

func (c *Client) paymentRequest(charge StageCharge, key string) *sq.CreatePaymentRequest {
	currency := strings.ToUpper(strings.TrimSpace(charge.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	cents := Cents(charge.Amount)
	sqCurrency := sq.Currency(currency)

	req := &sq.CreatePaymentRequest{
		IdempotencyKey: key,
		SourceID:       charge.SourceID,
		LocationID:     optional(c.locationID),
		CustomerID:     optional(charge.CustomerID),
		ReferenceID:    optional(charge.Reference),
		Note:           optional(charge.Note),
	}
	if cents > 0 {
		req.AmountMoney = &sq.Money{Amount: &cents, Currency: &sqCurrency}
	}
	return req
}

// Square caps idempotency keys at 45 characters. The random suffix keeps
// keys unique per attempt when a long reference has to be cut.
const (
	maxIdempotencyKeyLen = 45
	idempotencySuffixLen = 12
)

func idempotencyKey(reference string) string {
	prefix := strings.TrimSpace(reference)
	if prefix == "" {
		prefix = "sp"
	}
	suffix := "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:idempotencySuffixLen]
	if room := maxIdempotencyKeyLen - len(suffix); len(prefix) > room {
		prefix = prefix[:room]
	}
	return prefix + suffix
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
