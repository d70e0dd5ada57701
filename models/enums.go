package models

import "fmt"

type MaterialCategory string

const (
	MaterialCategoryTile             MaterialCategory = "Tile"
	MaterialCategoryStone            MaterialCategory = "Stone"
	MaterialCategoryBase             MaterialCategory = "Base"
	MaterialCategoryGrout            MaterialCategory = "Grout"
	MaterialCategorySettingMaterials MaterialCategory = "Setting Materials"
	MaterialCategorySundries         MaterialCategory = "Sundries"
	MaterialCategoryConsumable       MaterialCategory = "Consumable"
	MaterialCategoryGeneric          MaterialCategory = "Generic"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft       PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusOrdered     PurchaseOrderStatus = "Ordered"
	PurchaseOrderStatusReceived    PurchaseOrderStatus = "Received"
	PurchaseOrderStatusDiscrepancy PurchaseOrderStatus = "Received with Discrepancy"
)

// IsActive reports whether the order can still receive goods or new lines.
func (s PurchaseOrderStatus) IsActive() bool {
	return s == PurchaseOrderStatusDraft || s == PurchaseOrderStatusOrdered
}

type DeliveryTicketStatus string

const (
	DeliveryTicketStatusDraft           DeliveryTicketStatus = "draft"
	DeliveryTicketStatusPendingApproval DeliveryTicketStatus = "pending_approval"
	DeliveryTicketStatusScheduled       DeliveryTicketStatus = "scheduled"
	DeliveryTicketStatusInTransit       DeliveryTicketStatus = "in_transit"
	DeliveryTicketStatusReceived        DeliveryTicketStatus = "received"
)

// DeliveryTicketStatusSequence is the forward-only lifecycle. Advancing
// always moves one step; there is no skip or rollback.
var DeliveryTicketStatusSequence = []DeliveryTicketStatus{
	DeliveryTicketStatusDraft,
	DeliveryTicketStatusPendingApproval,
	DeliveryTicketStatusScheduled,
	DeliveryTicketStatusInTransit,
	DeliveryTicketStatusReceived,
}

func (s DeliveryTicketStatus) IsValid() bool {
	for _, v := range DeliveryTicketStatusSequence {
		if v == s {
			return true
		}
	}
	return false
}

// NextDeliveryTicketStatus returns the next element of the sequence.
func NextDeliveryTicketStatus(s DeliveryTicketStatus) (DeliveryTicketStatus, error) {
	for i, v := range DeliveryTicketStatusSequence {
		if v != s {
			continue
		}
		if i == len(DeliveryTicketStatusSequence)-1 {
			return "", fmt.Errorf("ticket is already %s", DeliveryTicketStatusReceived)
		}
		return DeliveryTicketStatusSequence[i+1], nil
	}
	return "", fmt.Errorf("unknown ticket status %q", string(s))
}

type TicketDestination string

const (
	TicketDestinationInventory TicketDestination = "Inventory"
	TicketDestinationShop      TicketDestination = "Shop"
)

// ReceiptCondition is the operator's verdict on a received line.
type ReceiptCondition string

const (
	ReceiptConditionVerified ReceiptCondition = "Verified"
	ReceiptConditionDamaged  ReceiptCondition = "Damaged"
	ReceiptConditionMissing  ReceiptCondition = "Missing"
)

// ConditionFlag is the stored short form on a discrepancy record.
type ConditionFlag string

const (
	ConditionFlagDamaged ConditionFlag = "D"
	ConditionFlagMissing ConditionFlag = "M"
)

// FlagForCondition maps the operator's selection to the stored flag.
// Verified shortfalls are recorded as Missing.
func FlagForCondition(c ReceiptCondition) ConditionFlag {
	if c == ReceiptConditionDamaged {
		return ConditionFlagDamaged
	}
	return ConditionFlagMissing
}
