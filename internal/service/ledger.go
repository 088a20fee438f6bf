package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"time"

	"dhronas-fees/internal/domain"

	"github.com/google/uuid"
)

// maxPaymentIDAttempts bounds how many payment ids are drawn for one record.
const maxPaymentIDAttempts = 5

type PaymentWriter interface {
	Create(ctx context.Context, p *domain.Payment) error
}

// PaymentLedger appends payment records, drawing a fresh business payment id
// whenever the stored one collides.
type PaymentLedger struct {
	store        PaymentWriter
	newPaymentID func() (string, error)
	now          func() time.Time
}

func NewPaymentLedger(store PaymentWriter) *PaymentLedger {
	return &PaymentLedger{store: store, newPaymentID: RandomPaymentID, now: time.Now}
}

var paymentIDSpan = big.NewInt(900_000_000_000)

// RandomPaymentID returns a 12-digit numeric id in 100000000000..999999999999.
func RandomPaymentID() (string, error) {
	n, err := rand.Int(rand.Reader, paymentIDSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100_000_000_000, 10), nil
}

// Create stores p. ID, TransactionID and PaymentDate are filled when empty;
// PaymentID is always generated. Only payment id collisions are retried.
func (l *PaymentLedger) Create(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.TransactionID == "" {
		p.TransactionID = uuid.NewString()
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = l.now()
	}
	if p.Description == "" {
		p.Description = domain.PaymentDescriptionDefault
	}

	for attempt := 1; attempt <= maxPaymentIDAttempts; attempt++ {
		id, err := l.newPaymentID()
		if err != nil {
			return fmt.Errorf("generate payment id: %w", err)
		}
		p.PaymentID = id

		err = l.store.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicatePaymentID) {
			return err
		}
		log.Printf("[PAY] payment id %s collided (attempt %d/%d)", id, attempt, maxPaymentIDAttempts)
	}

	p.PaymentID = ""
	return fmt.Errorf("%w: payment id collided %d times", domain.ErrPaymentCreation, maxPaymentIDAttempts)
}
