package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestToBuyClampsAtZero(t *testing.T) {
	tests := []struct {
		name                                    string
		budget, shop, inTransit, received, want string
	}{
		{"simple shortfall", "100", "20", "10", "30", "40"},
		{"fully covered", "100", "50", "0", "50", "0"},
		{"over-covered clamps", "100", "80", "30", "40", "0"},
		{"nothing on hand", "75", "0", "0", "0", "75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MaterialCommitment{
				BudgetQty:     dec(tt.budget),
				ShopStock:     dec(tt.shop),
				InTransit:     dec(tt.inTransit),
				ReceivedAtJob: dec(tt.received),
			}
			if got := m.ToBuy(); !got.Equal(dec(tt.want)) {
				t.Fatalf("ToBuy = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyReceiptQtyClampsInTransit(t *testing.T) {
	m := &MaterialCommitment{
		ShopStock:     dec("15"),
		InTransit:     dec("50"),
		ReceivedAtJob: dec("10"),
	}

	m.ApplyReceiptQty(dec("30"))
	if !m.ReceivedAtJob.Equal(dec("40")) {
		t.Fatalf("received = %s, want 40", m.ReceivedAtJob)
	}
	if !m.InTransit.Equal(dec("20")) {
		t.Fatalf("in_transit = %s, want 20", m.InTransit)
	}

	// receiving more than was in transit never drives in_transit negative
	m.ApplyReceiptQty(dec("35"))
	if !m.ReceivedAtJob.Equal(dec("75")) {
		t.Fatalf("received = %s, want 75", m.ReceivedAtJob)
	}
	if !m.InTransit.IsZero() {
		t.Fatalf("in_transit = %s, want 0", m.InTransit)
	}

	// shop stock is not part of a job-site receipt
	if !m.ShopStock.Equal(dec("15")) {
		t.Fatalf("shop_stock = %s, want 15 unchanged", m.ShopStock)
	}
}

func TestWasteQtyAndTotalValue(t *testing.T) {
	m := &MaterialCommitment{
		NetQty:       dec("200"),
		WastePercent: dec("10"),
		BudgetQty:    dec("220"),
		UnitCost:     dec("3.5"),
	}
	if got := m.WasteQty(); !got.Equal(dec("20")) {
		t.Fatalf("WasteQty = %s, want 20", got)
	}
	if got := m.TotalValue(); !got.Equal(dec("770")) {
		t.Fatalf("TotalValue = %s, want 770", got)
	}
}
