package external

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"math/rand"
	"strings"
	"sync"
	"time"
)

type PaymentResult struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

type PaymentGateway interface {
	Charge(ctx context.Context, amount float64) (PaymentResult, error)
	// Void 退回已成功但訂位未完成的款項
	Void(ctx context.Context, transactionID string, amount float64) error
}

// PaymentSimulator approves a charge with probability successRate. It never
// retries and never talks to a real processor.
type PaymentSimulator struct {
	successRate float64

	mu   sync.Mutex
	roll func() float64
}

func NewPaymentSimulator(successRate float64) *PaymentSimulator {
	return &PaymentSimulator{
		successRate: successRate,
		roll:        rand.Float64,
	}
}

// NewPaymentSimulatorWithRoll 測試用：注入固定的隨機來源
func NewPaymentSimulatorWithRoll(successRate float64, roll func() float64) *PaymentSimulator {
	return &PaymentSimulator{
		successRate: successRate,
		roll:        roll,
	}
}

func (p *PaymentSimulator) Charge(ctx context.Context, amount float64) (PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return PaymentResult{}, err
	}

	p.mu.Lock()
	success := p.roll() < p.successRate
	p.mu.Unlock()

	result := PaymentResult{
		Success:       success,
		TransactionID: newTransactionID(),
		Amount:        amount,
		Timestamp:     time.Now().UTC(),
		Message:       "Payment failed",
	}
	if success {
		result.Message = "Payment successful"
	}
	return result, nil
}

func (p *PaymentSimulator) Void(ctx context.Context, transactionID string, amount float64) error {
	return ctx.Err()
}

// newTransactionID returns TXN_ followed by 16 upper-case hex digits.
func newTransactionID() string {
	b := make([]byte, 8)
	_, _ = cryptorand.Read(b)
	return "TXN_" + strings.ToUpper(hex.EncodeToString(b))
}
