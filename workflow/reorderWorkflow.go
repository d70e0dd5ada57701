package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"github.com/lalas825/jantile-tracker-v2-sub000/models"
	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"gorm.io/gorm"
)

// CreateReorder turns a received order's positive shortfalls into a new
// Draft purchase order linked back via reorder_of_id. Damaged lines that
// arrived in full (zero difference) are claims against the vendor, not
// reorder candidates. The ledger is untouched until the draft is placed.
func CreateReorder(ctx context.Context, sourcePOId int) (*models.PurchaseOrder, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	source, err := utils.FetchModel[models.PurchaseOrder](ctx, projectId, sourcePOId, "LineItems", "Discrepancies")
	if err != nil {
		return nil, errors.New("purchase order not found")
	}
	if source.CurrentStatus.IsActive() {
		return nil, errors.New("purchase order has not been received yet")
	}

	lineByMaterial := make(map[int]*models.POLineItem, len(source.LineItems))
	for i := range source.LineItems {
		lineByMaterial[source.LineItems[i].MaterialId] = &source.LineItems[i]
	}

	reorder := models.PurchaseOrder{
		ProjectId:     projectId,
		VendorName:    source.VendorName,
		CurrentStatus: models.PurchaseOrderStatusDraft,
		ReorderOfId:   &source.ID,
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		reorder.OrderedBy = userName
	}

	for _, record := range source.Discrepancies {
		if !record.Difference.IsPositive() {
			continue
		}
		line, ok := lineByMaterial[record.MaterialId]
		if !ok {
			logger.Warnf("reorder of %s: discrepancy for material %d has no source line; skipped", source.PONumber, record.MaterialId)
			continue
		}
		reorder.LineItems = append(reorder.LineItems, models.POLineItem{
			MaterialId:      record.MaterialId,
			QuantityOrdered: record.Difference,
			Unit:            line.Unit,
			UnitCost:        line.UnitCost,
			PiecesPerCrate:  line.PiecesPerCrate,
			ProductCode:     line.ProductCode,
			ProductName:     line.ProductName,
			DimLength:       line.DimLength,
			DimWidth:        line.DimWidth,
			PcsPerUnit:      line.PcsPerUnit,
		})
	}

	if len(reorder.LineItems) == 0 {
		return nil, errors.New("no positive shortfalls to reorder")
	}

	tx := db.Begin()

	number, err := nextReorderNumber(tx.WithContext(ctx), projectId, source.PONumber)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	reorder.PONumber = number

	if err := tx.WithContext(ctx).Create(&reorder).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "reorderWorkflow.go", "CreateReorder", "CreateReorderPO", reorder.PONumber, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &reorder, nil
}

// nextReorderNumber derives PO-123-R1, PO-123-R2, ... from the count of
// existing reorders for the source number. Hand-entered numbers can leave
// gaps or collisions in the sequence, so the candidate is checked against
// existing rows and bumped until free.
func nextReorderNumber(tx *gorm.DB, projectId string, sourceNumber string) (string, error) {
	var count int64
	err := tx.Model(&models.PurchaseOrder{}).
		Where("project_id = ? AND po_number LIKE ?", projectId, sourceNumber+"-R%").
		Count(&count).Error
	if err != nil {
		return "", err
	}
	for n := count + 1; ; n++ {
		candidate := fmt.Sprintf("%s-R%d", sourceNumber, n)
		var taken int64
		err := tx.Model(&models.PurchaseOrder{}).
			Where("project_id = ? AND po_number = ?", projectId, candidate).
			Count(&taken).Error
		if err != nil {
			return "", err
		}
		if taken == 0 {
			return candidate, nil
		}
	}
}
