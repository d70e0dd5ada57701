package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrder struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	ProjectId            string              `gorm:"uniqueIndex:idx_po_number_per_project;not null" json:"project_id"`
	PONumber             string              `gorm:"size:100;uniqueIndex:idx_po_number_per_project;not null" json:"po_number" binding:"required"`
	VendorName           string              `gorm:"size:255;not null" json:"vendor_name" binding:"required"`
	CurrentStatus        PurchaseOrderStatus `gorm:"type:enum('Draft','Ordered','Received','Received with Discrepancy');not null" json:"current_status"`
	ExpectedDeliveryDate *time.Time          `gorm:"default:null" json:"expected_delivery_date"`
	OrderedBy            string              `gorm:"size:100" json:"ordered_by"`
	// ReorderOfId links a reorder back to the order whose shortfall spawned it.
	ReorderOfId   *int                `gorm:"index;default:null" json:"reorder_of_id"`
	LineItems     []POLineItem        `gorm:"foreignKey:PurchaseOrderId" json:"line_items"`
	Discrepancies []DiscrepancyRecord `gorm:"foreignKey:PurchaseOrderId" json:"discrepancies"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// POLineItem references a ledger commitment and snapshots the product
// metadata so the order stays readable even if the commitment changes.
type POLineItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	MaterialId      int             `gorm:"index;not null" json:"material_id"`
	QuantityOrdered decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_ordered"`
	Unit            string          `gorm:"size:50" json:"unit"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	// PiecesPerCrate is the bulk-receipt conversion factor when the catalog
	// defines one; zero means the operator must supply a multiplier.
	PiecesPerCrate decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pieces_per_crate"`

	ProductCode string          `gorm:"size:100" json:"product_code"`
	ProductName string          `gorm:"size:255" json:"product_name"`
	DimLength   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"dim_length"`
	DimWidth    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"dim_width"`
	PcsPerUnit  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pcs_per_unit"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DiscrepancyRecord captures a receipt-time mismatch. It is a recorded
// business event, not an error, and is immutable once created.
type DiscrepancyRecord struct {
	ID               int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId  int             `gorm:"index;not null" json:"purchase_order_id"`
	MaterialId       int             `gorm:"index;not null" json:"material_id"`
	ConditionFlag    ConditionFlag   `gorm:"type:enum('D','M');not null" json:"condition_flag"`
	Difference       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"difference"`
	PiecesDifference decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pieces_difference"`
	Notes            string          `gorm:"type:text" json:"notes"`
	PhotoUrl         string          `gorm:"size:500" json:"photo_url"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPurchaseOrder struct {
	PONumber             string              `json:"po_number" binding:"required"`
	VendorName           string              `json:"vendor_name" binding:"required"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date"`
	OrderedBy            string              `json:"ordered_by"`
	CurrentStatus        PurchaseOrderStatus `json:"current_status"`
	LineItems            []NewPOLineItem     `json:"line_items"`
}

type NewPOLineItem struct {
	MaterialId      int             `json:"material_id" binding:"required"`
	QuantityOrdered decimal.Decimal `json:"quantity_ordered"`
	Unit            string          `json:"unit"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	PiecesPerCrate  decimal.Decimal `json:"pieces_per_crate"`
}

func (input *NewPurchaseOrder) validate(ctx context.Context, projectId string) error {
	if strings.TrimSpace(input.PONumber) == "" {
		return errors.New("PO number is required")
	}
	if err := utils.ValidateUnique[PurchaseOrder](ctx, projectId, "po_number", input.PONumber, 0); err != nil {
		return err
	}
	if len(input.LineItems) == 0 {
		return errors.New("at least one line item is required")
	}
	return validateNewLineItems(ctx, projectId, input.LineItems)
}

func validateNewLineItems(ctx context.Context, projectId string, items []NewPOLineItem) error {
	for _, item := range items {
		if !item.QuantityOrdered.IsPositive() {
			return errors.New("line item quantity must be greater than zero")
		}
		if err := utils.ValidateResourceId[MaterialCommitment](ctx, projectId, item.MaterialId); err != nil {
			return fmt.Errorf("material %d not found", item.MaterialId)
		}
	}
	return nil
}

// buildLineItem snapshots the commitment's product metadata onto the line.
func (item NewPOLineItem) buildLineItem(m *MaterialCommitment) POLineItem {
	unit := item.Unit
	if unit == "" {
		unit = m.Unit
	}
	unitCost := item.UnitCost
	if unitCost.IsZero() {
		unitCost = m.UnitCost
	}
	return POLineItem{
		MaterialId:      item.MaterialId,
		QuantityOrdered: item.QuantityOrdered,
		Unit:            unit,
		UnitCost:        unitCost,
		PiecesPerCrate:  item.PiecesPerCrate,
		ProductCode:     m.ProductCode,
		ProductName:     m.ProductName,
		DimLength:       m.DimLength,
		DimWidth:        m.DimWidth,
		PcsPerUnit:      m.PcsPerUnit,
	}
}

// CreatePurchaseOrder creates a vendor order in "New PO" mode. The returned
// warnings list over-budget materials; over-budget never blocks the save.
func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, []string, error) {
	db := config.GetDB()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, nil, errors.New("project id is required")
	}

	if err := input.validate(ctx, projectId); err != nil {
		return nil, nil, err
	}

	status := input.CurrentStatus
	if status == "" {
		status = PurchaseOrderStatusOrdered
	}
	if !status.IsActive() {
		return nil, nil, errors.New("a new purchase order cannot start as received")
	}

	po := PurchaseOrder{
		ProjectId:            projectId,
		PONumber:             input.PONumber,
		VendorName:           input.VendorName,
		CurrentStatus:        PurchaseOrderStatusDraft,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		OrderedBy:            input.OrderedBy,
	}
	if po.OrderedBy == "" {
		if userName, ok := utils.GetUserNameFromContext(ctx); ok {
			po.OrderedBy = userName
		}
	}

	var warnings []string

	tx := db.Begin()

	for _, item := range input.LineItems {
		var m MaterialCommitment
		if err := tx.WithContext(ctx).Where("project_id = ?", projectId).First(&m, item.MaterialId).Error; err != nil {
			tx.Rollback()
			return nil, nil, fmt.Errorf("material %d not found", item.MaterialId)
		}
		if w := overBudgetWarning(&m, item.QuantityOrdered); w != "" {
			warnings = append(warnings, w)
		}
		po.LineItems = append(po.LineItems, item.buildLineItem(&m))
	}

	if err := tx.WithContext(ctx).Create(&po).Error; err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	// Apply the requested status deterministically (Draft -> Ordered) so the
	// ledger side-effects follow the same transition path everywhere.
	if status == PurchaseOrderStatusOrdered {
		if err := tx.WithContext(ctx).Model(&po).Update("CurrentStatus", PurchaseOrderStatusOrdered).Error; err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		po.CurrentStatus = PurchaseOrderStatusOrdered
		if err := ApplyPurchaseOrderStockForStatusTransition(tx.WithContext(ctx), &po, PurchaseOrderStatusDraft); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	return &po, warnings, nil
}

// AddLineItemsToPurchaseOrder is the "Add to Existing" mode: the target
// order must still be active (not yet received).
func AddLineItemsToPurchaseOrder(ctx context.Context, poId int, items []NewPOLineItem) (*PurchaseOrder, []string, error) {
	db := config.GetDB()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, nil, errors.New("project id is required")
	}

	if len(items) == 0 {
		return nil, nil, errors.New("at least one line item is required")
	}
	if err := validateNewLineItems(ctx, projectId, items); err != nil {
		return nil, nil, err
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, projectId, poId, "LineItems")
	if err != nil {
		return nil, nil, errors.New("purchase order not found")
	}
	if !po.CurrentStatus.IsActive() {
		return nil, nil, errors.New("purchase order has already been received")
	}

	var warnings []string

	tx := db.Begin()

	var added []POLineItem
	for _, item := range items {
		var m MaterialCommitment
		if err := tx.WithContext(ctx).Where("project_id = ?", projectId).First(&m, item.MaterialId).Error; err != nil {
			tx.Rollback()
			return nil, nil, fmt.Errorf("material %d not found", item.MaterialId)
		}
		if w := overBudgetWarning(&m, item.QuantityOrdered); w != "" {
			warnings = append(warnings, w)
		}
		line := item.buildLineItem(&m)
		line.PurchaseOrderId = po.ID
		if err := tx.WithContext(ctx).Create(&line).Error; err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		added = append(added, line)
	}

	// an already-placed order commits the new quantities immediately
	if po.CurrentStatus == PurchaseOrderStatusOrdered {
		if err := applyOrderedQtyForLines(tx.WithContext(ctx), projectId, added); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}

	po.LineItems = append(po.LineItems, added...)
	return po, warnings, nil
}

// overBudgetWarning reports when committed + pending quantity would exceed
// the budget. Soft signal only.
func overBudgetWarning(m *MaterialCommitment, pendingQty decimal.Decimal) string {
	committed := m.OrderedQty.Add(m.ShopStock).Add(m.ReceivedAtJob).Add(m.InTransit).Add(pendingQty)
	if committed.GreaterThan(m.BudgetQty) {
		return fmt.Sprintf("%s: ordering %s would exceed budget (%s committed of %s budgeted)",
			m.ProductName, pendingQty.String(), committed.String(), m.BudgetQty.String())
	}
	return ""
}

// PlacePurchaseOrder moves a Draft order to Ordered and commits its line
// quantities to the ledger. This is how a reorder draft gets placed.
func PlacePurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	po, err := utils.FetchModel[PurchaseOrder](ctx, projectId, id, "LineItems")
	if err != nil {
		return nil, errors.New("purchase order not found")
	}
	if po.CurrentStatus != PurchaseOrderStatusDraft {
		return nil, errors.New("only a draft purchase order can be placed")
	}

	tx := db.Begin()

	if err := tx.WithContext(ctx).Model(po).Update("CurrentStatus", PurchaseOrderStatusOrdered).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	po.CurrentStatus = PurchaseOrderStatusOrdered
	if err := ApplyPurchaseOrderStockForStatusTransition(tx.WithContext(ctx), po, PurchaseOrderStatusDraft); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return po, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, projectId, id, "LineItems", "Discrepancies")
}

func ListPurchaseOrders(ctx context.Context, status *PurchaseOrderStatus) ([]*PurchaseOrder, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("project_id = ?", projectId)
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var orders []*PurchaseOrder
	err := dbCtx.Preload("LineItems").Preload("Discrepancies").
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListActivePurchaseOrders returns orders that can still receive goods,
// i.e. the candidates for "Add to Existing" mode.
func ListActivePurchaseOrders(ctx context.Context) ([]*PurchaseOrder, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	db := config.GetDB()
	var orders []*PurchaseOrder
	err := db.WithContext(ctx).
		Where("project_id = ? AND current_status IN ?", projectId,
			[]PurchaseOrderStatus{PurchaseOrderStatusDraft, PurchaseOrderStatusOrdered}).
		Preload("LineItems").
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func applyOrderedQtyForLines(tx *gorm.DB, projectId string, lines []POLineItem) error {
	for _, line := range lines {
		if err := UpdateCommitmentOrderedQty(tx, projectId, line.MaterialId, line.QuantityOrdered); err != nil {
			return err
		}
	}
	return nil
}
