package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApplyPurchaseOrderStockForStatusTransition applies ledger changes for a
// PurchaseOrder status transition.
//
// Draft -> Ordered : commit the ordered quantities (ordered_qty and
// in_transit both rise per line). Receipt transitions are handled by the
// receiving workflow, not here.
func ApplyPurchaseOrderStockForStatusTransition(tx *gorm.DB, po *PurchaseOrder, oldStatus PurchaseOrderStatus) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if po == nil {
		return fmt.Errorf("purchase order is nil")
	}
	if oldStatus == po.CurrentStatus {
		return nil
	}

	apply := oldStatus == PurchaseOrderStatusDraft && po.CurrentStatus == PurchaseOrderStatusOrdered
	if !apply {
		return nil
	}

	for _, line := range po.LineItems {
		if line.MaterialId <= 0 {
			continue
		}
		if err := UpdateCommitmentOrderedQty(tx, po.ProjectId, line.MaterialId, line.QuantityOrdered); err != nil {
			return err
		}
	}
	return nil
}

// UpdateCommitmentOrderedQty raises a commitment's ordered and in-transit
// quantities by qty inside the caller's transaction.
func UpdateCommitmentOrderedQty(tx *gorm.DB, projectId string, materialId int, qty decimal.Decimal) error {
	if qty.IsZero() {
		return nil
	}
	result := tx.Model(&MaterialCommitment{}).
		Where("id = ? AND project_id = ?", materialId, projectId).
		Updates(map[string]interface{}{
			"ordered_qty": gorm.Expr("ordered_qty + ?", qty),
			"in_transit":  gorm.Expr("in_transit + ?", qty),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("material %d not found", materialId)
	}
	return nil
}
