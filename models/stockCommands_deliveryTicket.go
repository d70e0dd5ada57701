package models

import (
	"fmt"

	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"gorm.io/gorm"
)

// ApplyTicketReceipt applies a received ticket's ledger side effects inside
// the caller's transaction.
//
// Inventory destination: each line's quantity lands at the job site
// (received_at_job up, in_transit down, clamped at zero). Shop-side
// balances are inventory-internal and stay untouched. Shop destination
// is a status-only movement and touches nothing.
//
// Lines whose commitment was deleted since the ticket was written are
// skipped; the rest of the ticket still applies.
func ApplyTicketReceipt(tx *gorm.DB, ticket *DeliveryTicket) error {
	if tx == nil {
		return fmt.Errorf("tx is nil")
	}
	if ticket == nil {
		return fmt.Errorf("delivery ticket is nil")
	}
	if ticket.Destination != TicketDestinationInventory {
		return nil
	}

	logger := config.GetLogger()
	ctx := tx.Statement.Context

	for _, item := range ticket.Items {
		if item.MaterialId <= 0 {
			continue
		}
		var m MaterialCommitment
		err := tx.Where("project_id = ?", ticket.ProjectId).First(&m, item.MaterialId).Error
		if err == gorm.ErrRecordNotFound {
			logger.WithContext(ctx).Warnf("ticket %s: material %d no longer exists; line skipped", ticket.TicketNumber, item.MaterialId)
			continue
		} else if err != nil {
			return err
		}

		m.ApplyReceiptQty(item.Quantity)

		err = tx.Model(&m).Updates(map[string]interface{}{
			"ReceivedAtJob": m.ReceivedAtJob,
			"InTransit":     m.InTransit,
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
