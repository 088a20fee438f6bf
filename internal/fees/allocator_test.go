package fees

import (
	"math/rand"
	"testing"
	"time"

	"dhronas-fees/internal/domain"

	"github.com/shopspring/decimal"
)

var base = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func schedule(amounts ...string) []domain.Installment {
	out := make([]domain.Installment, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, domain.Installment{
			ID:             int64(i + 1),
			StudentID:      "STU-TEST",
			Number:         i + 1,
			OriginalAmount: d(a),
			Amount:         d(a),
			DueDate:        base.AddDate(0, i, 0),
			Status:         domain.InstallmentPending,
		})
	}
	return out
}

// apply merges touched installments back into the full list by id.
func apply(all, touched []domain.Installment) []domain.Installment {
	out := append([]domain.Installment(nil), all...)
	for _, tt := range touched {
		for i := range out {
			if out[i].ID == tt.ID {
				out[i] = tt
			}
		}
	}
	return out
}

func TestAllocate_PartialPayment(t *testing.T) {
	all := schedule("100", "100", "100")

	touched, rest := Allocate(all, d("150"))
	if !rest.IsZero() {
		t.Fatalf("expected no remainder, got %s", rest)
	}
	if len(touched) != 2 {
		t.Fatalf("expected 2 touched installments, got %d", len(touched))
	}

	got := apply(all, touched)
	want := []struct {
		amount string
		status domain.InstallmentStatus
	}{
		{"0", domain.InstallmentPaid},
		{"50", domain.InstallmentPartiallyPaid},
		{"100", domain.InstallmentPending},
	}
	for i, w := range want {
		if !got[i].Amount.Equal(d(w.amount)) || got[i].Status != w.status {
			t.Errorf("installment %d: expected %s/%s, got %s/%s", i+1, w.amount, w.status, got[i].Amount, got[i].Status)
		}
	}
}

func TestAllocate_Overpayment(t *testing.T) {
	all := schedule("100", "100", "100")

	touched, rest := Allocate(all, d("350"))
	if !rest.Equal(d("50")) {
		t.Fatalf("expected remainder 50, got %s", rest)
	}
	if len(touched) != 3 {
		t.Fatalf("expected 3 touched, got %d", len(touched))
	}
	for _, in := range touched {
		if !in.Amount.IsZero() || in.Status != domain.InstallmentPaid {
			t.Errorf("installment %d: expected paid, got %s/%s", in.Number, in.Amount, in.Status)
		}
	}
}

func TestAllocate_ZeroPayment(t *testing.T) {
	all := schedule("100", "100", "100")

	touched, rest := Allocate(all, decimal.Zero)
	if len(touched) != 0 {
		t.Fatalf("expected nothing touched, got %d", len(touched))
	}
	if !rest.IsZero() {
		t.Fatalf("expected zero remainder, got %s", rest)
	}
}

func TestAllocate_SkipsPaidAndOrdersByDueDate(t *testing.T) {
	all := schedule("100", "100", "100")
	all[0].Amount = decimal.Zero
	all[0].Status = domain.InstallmentPaid
	// third installment falls due before the second one
	all[2].DueDate = base.AddDate(0, 0, 15)

	touched, _ := Allocate(all, d("120"))
	if len(touched) != 2 {
		t.Fatalf("expected 2 touched, got %d", len(touched))
	}
	if touched[0].Number != 3 || touched[0].Status != domain.InstallmentPaid {
		t.Errorf("expected installment 3 paid first, got #%d %s", touched[0].Number, touched[0].Status)
	}
	if touched[1].Number != 2 || !touched[1].Amount.Equal(d("80")) {
		t.Errorf("expected installment 2 reduced to 80, got #%d %s", touched[1].Number, touched[1].Amount)
	}
}

func TestAllocate_SameDueDateUsesNumber(t *testing.T) {
	all := schedule("40", "40")
	all[0].DueDate = base
	all[1].DueDate = base
	all[0], all[1] = all[1], all[0]

	touched, _ := Allocate(all, d("10"))
	if len(touched) != 1 || touched[0].Number != 1 {
		t.Fatalf("expected installment 1 to be reduced first, got %+v", touched)
	}
}

func TestAllocate_DoesNotMutateInput(t *testing.T) {
	all := schedule("100", "100")
	Allocate(all, d("150"))
	for _, in := range all {
		if !in.Amount.Equal(d("100")) || in.Status != domain.InstallmentPending {
			t.Fatalf("input was modified: %+v", in)
		}
	}
}

func TestAllocate_ContinuesPartiallyPaid(t *testing.T) {
	all := schedule("100", "100")
	all[0].Amount = d("30")
	all[0].Status = domain.InstallmentPartiallyPaid

	touched, rest := Allocate(all, d("30"))
	if !rest.IsZero() || len(touched) != 1 {
		t.Fatalf("expected exact payoff of installment 1, got %d touched rest %s", len(touched), rest)
	}
	if touched[0].Status != domain.InstallmentPaid {
		t.Fatalf("expected paid, got %s", touched[0].Status)
	}
}

func TestAllocate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(6)
		amounts := make([]string, n)
		for i := range amounts {
			amounts[i] = decimal.NewFromInt(int64(rng.Intn(50000) + 1)).Shift(-2).String()
		}
		all := schedule(amounts...)
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

		payment := decimal.NewFromInt(int64(rng.Intn(120000))).Shift(-2)
		before := Outstanding(all)

		touched, rest := Allocate(all, payment)
		after := apply(all, touched)

		applied := before.Sub(Outstanding(after))
		if !applied.Equal(decimal.Min(payment, before)) {
			t.Fatalf("conservation: applied %s, payment %s, outstanding %s", applied, payment, before)
		}
		if !applied.Add(rest).Equal(payment) {
			t.Fatalf("applied %s + remainder %s != payment %s", applied, rest, payment)
		}

		for i, in := range after {
			if in.Amount.GreaterThan(all[i].Amount) {
				t.Fatalf("monotonicity: installment %d grew from %s to %s", in.Number, all[i].Amount, in.Amount)
			}
			switch in.Status {
			case domain.InstallmentPaid:
				if !in.Amount.IsZero() {
					t.Fatalf("paid installment %d has amount %s", in.Number, in.Amount)
				}
			case domain.InstallmentPartiallyPaid:
				if !in.Amount.IsPositive() || !in.Amount.LessThan(in.OriginalAmount) {
					t.Fatalf("partially paid installment %d has amount %s of %s", in.Number, in.Amount, in.OriginalAmount)
				}
			}
		}

		if payment.IsZero() && len(touched) != 0 {
			t.Fatalf("idempotence: zero payment touched %d installments", len(touched))
		}
	}
}
