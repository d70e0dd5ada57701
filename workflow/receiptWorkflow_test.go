package workflow

import (
	"testing"

	"github.com/lalas825/jantile-tracker-v2-sub000/models"
	"github.com/shopspring/decimal"
)

func TestBuildDiscrepancy(t *testing.T) {
	po := &models.PurchaseOrder{ID: 11}
	line := &models.POLineItem{
		ID:              1,
		MaterialId:      42,
		QuantityOrdered: dec("100"),
		DimLength:       dec("12"),
		DimWidth:        dec("24"), // 2 sqft per piece -> 50 pieces ordered
	}

	t.Run("full verified receipt leaves no record", func(t *testing.T) {
		d := &ReceiptDescriptor{Condition: models.ReceiptConditionVerified}
		_, ok := buildDiscrepancy(po, line, d, dec("100"), dec("50"))
		if ok {
			t.Fatal("expected no discrepancy for a clean full receipt")
		}
	})

	t.Run("over-receipt verified leaves no record", func(t *testing.T) {
		_, ok := buildDiscrepancy(po, line, nil, dec("110"), dec("55"))
		if ok {
			t.Fatal("expected no discrepancy for an over-receipt")
		}
	})

	t.Run("shortfall is recorded as missing", func(t *testing.T) {
		d := &ReceiptDescriptor{Condition: models.ReceiptConditionVerified, Notes: "short one crate"}
		record, ok := buildDiscrepancy(po, line, d, dec("80"), dec("40"))
		if !ok {
			t.Fatal("expected a discrepancy for a shortfall")
		}
		if record.ConditionFlag != models.ConditionFlagMissing {
			t.Fatalf("flag = %s, want M", record.ConditionFlag)
		}
		if !record.Difference.Equal(dec("20")) {
			t.Fatalf("difference = %s, want 20", record.Difference)
		}
		if !record.PiecesDifference.Equal(dec("10")) {
			t.Fatalf("pieces difference = %s, want 10", record.PiecesDifference)
		}
		if record.Notes != "short one crate" {
			t.Fatalf("notes = %q", record.Notes)
		}
	})

	t.Run("damaged full receipt is still recorded", func(t *testing.T) {
		d := &ReceiptDescriptor{Condition: models.ReceiptConditionDamaged, PhotoUrl: "https://cdn/img.jpg"}
		record, ok := buildDiscrepancy(po, line, d, dec("100"), dec("50"))
		if !ok {
			t.Fatal("expected a discrepancy for a damaged line")
		}
		if record.ConditionFlag != models.ConditionFlagDamaged {
			t.Fatalf("flag = %s, want D", record.ConditionFlag)
		}
		if !record.Difference.IsZero() {
			t.Fatalf("difference = %s, want 0", record.Difference)
		}
		if record.PhotoUrl != "https://cdn/img.jpg" {
			t.Fatalf("photo url = %q", record.PhotoUrl)
		}
	})

	t.Run("line with no descriptor is a full shortfall", func(t *testing.T) {
		record, ok := buildDiscrepancy(po, line, nil, decimal.Zero, decimal.Zero)
		if !ok {
			t.Fatal("expected a discrepancy for an unreceipted line")
		}
		if !record.Difference.Equal(dec("100")) {
			t.Fatalf("difference = %s, want 100", record.Difference)
		}
		if record.ConditionFlag != models.ConditionFlagMissing {
			t.Fatalf("flag = %s, want M", record.ConditionFlag)
		}
	})
}

func TestReceiptOverBudgetWarning(t *testing.T) {
	m := &models.MaterialCommitment{
		ProductName:   "Carrara 12x24",
		BudgetQty:     dec("100"),
		ShopStock:     dec("20"),
		InTransit:     dec("0"),
		ReceivedAtJob: dec("70"),
	}
	if w := receiptOverBudgetWarning(m); w != "" {
		t.Fatalf("expected no warning at 90 of 100, got %q", w)
	}
	m.ReceivedAtJob = dec("90")
	if w := receiptOverBudgetWarning(m); w == "" {
		t.Fatal("expected a warning at 110 of 100")
	}
}
