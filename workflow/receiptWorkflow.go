package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"github.com/lalas825/jantile-tracker-v2-sub000/models"
	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SkippedLineItem reports a receipt line that could not be applied because
// its commitment no longer exists. The rest of the batch still lands.
type SkippedLineItem struct {
	LineItemId  int    `json:"line_item_id"`
	MaterialId  int    `json:"material_id"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

// ReceiptResult is everything the receiving screen needs to render the
// outcome of one batch.
type ReceiptResult struct {
	PurchaseOrder      *models.PurchaseOrder        `json:"purchase_order"`
	UpdatedCommitments []*models.MaterialCommitment `json:"updated_commitments"`
	Discrepancies      []models.DiscrepancyRecord   `json:"discrepancies"`
	SkippedLineItems   []SkippedLineItem            `json:"skipped_line_items"`
	Warnings           []string                     `json:"warnings"`
}

// ApplyReceipt runs a full receiving pass over a purchase order: one batch,
// one transaction, serialized per project. Either every surviving line
// lands on the ledger and the order flips to a received status, or nothing
// changes at all.
func ApplyReceipt(ctx context.Context, poId int, receipts []ReceiptDescriptor) (*ReceiptResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	debug := strings.EqualFold(strings.TrimSpace(os.Getenv("DEBUG_RECEIPT")), "true")

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	po, err := utils.FetchModel[models.PurchaseOrder](ctx, projectId, poId, "LineItems")
	if err != nil {
		return nil, errors.New("purchase order not found")
	}
	if !po.CurrentStatus.IsActive() {
		return nil, errors.New("purchase order has already been received")
	}

	byLineId := make(map[int]*ReceiptDescriptor, len(receipts))
	for i := range receipts {
		d := &receipts[i]
		if _, dup := byLineId[d.LineItemId]; dup {
			return nil, fmt.Errorf("duplicate receipt descriptor for line %d", d.LineItemId)
		}
		byLineId[d.LineItemId] = d
	}
	for lineId := range byLineId {
		if !poHasLine(po, lineId) {
			return nil, fmt.Errorf("line %d does not belong to purchase order %s", lineId, po.PONumber)
		}
	}

	correlationId := correlationIdFromContextOrNew(ctx)
	if debug {
		logger.WithFields(logrus.Fields{
			"field":          "ApplyReceipt",
			"project_id":     projectId,
			"po_number":      po.PONumber,
			"line_count":     len(po.LineItems),
			"receipt_count":  len(receipts),
			"correlation_id": correlationId,
		}).Info("begin receipt batch")
	}

	release, err := utils.ProjectLock(ctx, projectId, "ledgerLock", "receiptWorkflow.go", "ApplyReceipt")
	if err != nil {
		return nil, err
	}
	defer release()

	result := &ReceiptResult{PurchaseOrder: po}

	tx := db.Begin()

	for i := range po.LineItems {
		line := &po.LineItems[i]

		qty, pieces, err := resolveLineReceipt(byLineId[line.ID], line)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		var m models.MaterialCommitment
		err = tx.WithContext(ctx).Where("project_id = ?", projectId).First(&m, line.MaterialId).Error
		if err == gorm.ErrRecordNotFound {
			result.SkippedLineItems = append(result.SkippedLineItems, SkippedLineItem{
				LineItemId:  line.ID,
				MaterialId:  line.MaterialId,
				ProductName: line.ProductName,
				Reason:      "material commitment no longer exists",
			})
			continue
		} else if err != nil {
			tx.Rollback()
			config.LogError(logger, "receiptWorkflow.go", "ApplyReceipt", "FetchCommitment", line.MaterialId, err)
			return nil, err
		}

		m.ApplyReceiptQty(qty)
		err = tx.WithContext(ctx).Model(&m).Updates(map[string]interface{}{
			"ReceivedAtJob": m.ReceivedAtJob,
			"InTransit":     m.InTransit,
		}).Error
		if err != nil {
			tx.Rollback()
			config.LogError(logger, "receiptWorkflow.go", "ApplyReceipt", "UpdateCommitment", m.ID, err)
			return nil, err
		}
		result.UpdatedCommitments = append(result.UpdatedCommitments, &m)

		if w := receiptOverBudgetWarning(&m); w != "" {
			result.Warnings = append(result.Warnings, w)
		}

		if record, ok := buildDiscrepancy(po, line, byLineId[line.ID], qty, pieces); ok {
			if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
				tx.Rollback()
				config.LogError(logger, "receiptWorkflow.go", "ApplyReceipt", "CreateDiscrepancy", record, err)
				return nil, err
			}
			result.Discrepancies = append(result.Discrepancies, record)
		}

		if debug {
			logger.WithFields(logrus.Fields{
				"field":          "ApplyReceipt",
				"correlation_id": correlationId,
				"line_item_id":   line.ID,
				"material_id":    line.MaterialId,
				"qty_ordered":    line.QuantityOrdered.String(),
				"qty_received":   qty.String(),
				"pieces":         pieces.String(),
			}).Info("receipt line applied")
		}
	}

	finalStatus := models.PurchaseOrderStatusReceived
	if len(result.Discrepancies) > 0 {
		finalStatus = models.PurchaseOrderStatusDiscrepancy
	}
	if err := tx.WithContext(ctx).Model(po).Update("CurrentStatus", finalStatus).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "receiptWorkflow.go", "ApplyReceipt", "UpdatePurchaseOrderStatus", finalStatus, err)
		return nil, err
	}
	po.CurrentStatus = finalStatus

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if debug {
		logger.WithFields(logrus.Fields{
			"field":          "ApplyReceipt",
			"correlation_id": correlationId,
			"po_number":      po.PONumber,
			"final_status":   string(finalStatus),
			"discrepancies":  len(result.Discrepancies),
			"skipped":        len(result.SkippedLineItems),
		}).Info("receipt batch committed")
	}

	return result, nil
}

// resolveLineReceipt handles the line with no descriptor as received zero,
// so the shortfall still surfaces as a Missing discrepancy.
func resolveLineReceipt(d *ReceiptDescriptor, line *models.POLineItem) (decimal.Decimal, decimal.Decimal, error) {
	if d == nil {
		return decimal.Zero, decimal.Zero, nil
	}
	return ResolveReceiptQty(d, line)
}

// buildDiscrepancy decides whether a line leaves a discrepancy record:
// any positive shortfall, or any condition other than Verified.
func buildDiscrepancy(po *models.PurchaseOrder, line *models.POLineItem, d *ReceiptDescriptor, qty, pieces decimal.Decimal) (models.DiscrepancyRecord, bool) {
	difference := line.QuantityOrdered.Sub(qty)

	condition := models.ReceiptConditionVerified
	notes := ""
	photoUrl := ""
	if d != nil {
		if d.Condition != "" {
			condition = d.Condition
		}
		notes = d.Notes
		photoUrl = d.PhotoUrl
	}

	if !difference.IsPositive() && condition == models.ReceiptConditionVerified {
		return models.DiscrepancyRecord{}, false
	}

	perPiece := SqftPerPiece(line.DimLength, line.DimWidth, line.PcsPerUnit)
	piecesDifference := line.QuantityOrdered.Div(perPiece).Sub(pieces)

	return models.DiscrepancyRecord{
		PurchaseOrderId:  po.ID,
		MaterialId:       line.MaterialId,
		ConditionFlag:    models.FlagForCondition(condition),
		Difference:       difference,
		PiecesDifference: piecesDifference,
		Notes:            notes,
		PhotoUrl:         photoUrl,
	}, true
}

func receiptOverBudgetWarning(m *models.MaterialCommitment) string {
	onHandOrInbound := m.ShopStock.Add(m.InTransit).Add(m.ReceivedAtJob)
	if onHandOrInbound.GreaterThan(m.BudgetQty) {
		return fmt.Sprintf("%s: on-hand and inbound (%s) now exceed budget (%s)",
			m.ProductName, onHandOrInbound.String(), m.BudgetQty.String())
	}
	return ""
}

func poHasLine(po *models.PurchaseOrder, lineId int) bool {
	for _, line := range po.LineItems {
		if line.ID == lineId {
			return true
		}
	}
	return false
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
