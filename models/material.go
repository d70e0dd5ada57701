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
)

// MaterialCommitment is the canonical ledger row: one material budgeted for
// one work area, with the quantities tracked across both supply channels.
type MaterialCommitment struct {
	ID        int    `gorm:"primary_key" json:"id"`
	ProjectId string `gorm:"index;not null" json:"project_id"`
	AreaId    *int   `gorm:"index;default:null" json:"area_id"`

	ProductCode  string           `gorm:"size:100;index" json:"product_code"`
	ProductName  string           `gorm:"size:255;not null" json:"product_name" binding:"required"`
	ProductSpecs string           `gorm:"size:255" json:"product_specs"`
	Category     MaterialCategory `gorm:"type:enum('Tile','Stone','Base','Grout','Setting Materials','Sundries','Consumable','Generic');default:'Generic'" json:"category"`
	Unit         string           `gorm:"size:50" json:"unit"`

	DimLength    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"dim_length"`
	DimWidth     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"dim_width"`
	DimThickness decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"dim_thickness"`

	SubLocation string `gorm:"size:100" json:"sub_location"`
	Zone        string `gorm:"size:100" json:"zone"`

	NetQty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_qty"`
	WastePercent  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"waste_percent"`
	BudgetQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"budget_qty"`
	OrderedQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"ordered_qty"`
	ShopStock     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shop_stock"`
	InTransit     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"in_transit"`
	ReceivedAtJob decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_at_job"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	PcsPerUnit    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pcs_per_unit"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewMaterialCommitment is the upsert input. It deliberately has no
// received_at_job field: that quantity only moves through receipt events.
type NewMaterialCommitment struct {
	AreaId *int `json:"area_id"`
	// Implicit creation: when NewAreaName is set the area (and, when
	// NewUnitName is set, its unit) is created in the same transaction
	// as the commitment.
	NewAreaName  string `json:"new_area_name"`
	NewUnitName  string `json:"new_unit_name"`
	NewUnitFloor string `json:"new_unit_floor"`

	ProductCode  string           `json:"product_code"`
	ProductName  string           `json:"product_name" binding:"required"`
	ProductSpecs string           `json:"product_specs"`
	Category     MaterialCategory `json:"category"`
	Unit         string           `json:"unit"`

	DimLength    decimal.Decimal `json:"dim_length"`
	DimWidth     decimal.Decimal `json:"dim_width"`
	DimThickness decimal.Decimal `json:"dim_thickness"`

	SubLocation string `json:"sub_location"`
	Zone        string `json:"zone"`

	NetQty       decimal.Decimal `json:"net_qty"`
	WastePercent decimal.Decimal `json:"waste_percent"`
	// BudgetQty is persisted as given; deriving it from net + waste is the
	// caller's concern (manual override is permitted).
	BudgetQty  decimal.Decimal `json:"budget_qty"`
	ShopStock  decimal.Decimal `json:"shop_stock"`
	InTransit  decimal.Decimal `json:"in_transit"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	PcsPerUnit decimal.Decimal `json:"pcs_per_unit"`
}

// WasteQty is net_qty * waste_percent / 100, derived on read.
func (m *MaterialCommitment) WasteQty() decimal.Decimal {
	return m.NetQty.Mul(m.WastePercent).Div(decimal.NewFromInt(100))
}

// TotalValue is budget_qty * unit_cost, derived on read.
func (m *MaterialCommitment) TotalValue() decimal.Decimal {
	return m.BudgetQty.Mul(m.UnitCost)
}

// ToBuy is the procurement shortfall, recomputed on every call and clamped
// at zero. Never stored.
func (m *MaterialCommitment) ToBuy() decimal.Decimal {
	onHandOrInbound := m.ShopStock.Add(m.InTransit).Add(m.ReceivedAtJob)
	toBuy := m.BudgetQty.Sub(onHandOrInbound)
	if toBuy.IsNegative() {
		return decimal.Zero
	}
	return toBuy
}

// ApplyReceiptQty records a physical arrival at the job site: the received
// quantity goes up by qty and in-transit goes down by the same amount,
// clamped at zero. Receipt events are the only path that raises
// received_at_job.
func (m *MaterialCommitment) ApplyReceiptQty(qty decimal.Decimal) {
	m.ReceivedAtJob = m.ReceivedAtJob.Add(qty)
	m.InTransit = m.InTransit.Sub(qty)
	if m.InTransit.IsNegative() {
		m.InTransit = decimal.Zero
	}
}

func (input *NewMaterialCommitment) validate(ctx context.Context, projectId string) error {
	if strings.TrimSpace(input.ProductName) == "" {
		return errors.New("product name is required")
	}
	if input.AreaId != nil && input.NewAreaName == "" {
		if err := utils.ValidateResourceId[Area](ctx, projectId, *input.AreaId); err != nil {
			return errors.New("area not found")
		}
	}
	for name, qty := range map[string]decimal.Decimal{
		"net_qty":       input.NetQty,
		"waste_percent": input.WastePercent,
		"budget_qty":    input.BudgetQty,
		"shop_stock":    input.ShopStock,
		"in_transit":    input.InTransit,
		"unit_cost":     input.UnitCost,
		"pcs_per_unit":  input.PcsPerUnit,
	} {
		if qty.IsNegative() {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	return nil
}

func (input *NewMaterialCommitment) toCommitment(projectId string) MaterialCommitment {
	category := input.Category
	if category == "" {
		category = MaterialCategoryGeneric
	}
	return MaterialCommitment{
		ProjectId:    projectId,
		AreaId:       input.AreaId,
		ProductCode:  input.ProductCode,
		ProductName:  input.ProductName,
		ProductSpecs: input.ProductSpecs,
		Category:     category,
		Unit:         input.Unit,
		DimLength:    input.DimLength,
		DimWidth:     input.DimWidth,
		DimThickness: input.DimThickness,
		SubLocation:  input.SubLocation,
		Zone:         input.Zone,
		NetQty:       input.NetQty,
		WastePercent: input.WastePercent,
		BudgetQty:    input.BudgetQty,
		ShopStock:    input.ShopStock,
		InTransit:    input.InTransit,
		UnitCost:     input.UnitCost,
		PcsPerUnit:   input.PcsPerUnit,
	}
}

// CreateMaterialCommitment inserts a ledger row. When the input carries a
// new-area request, unit and area creation happen in the same transaction:
// a failed area creation never leaves an orphaned commitment behind.
func CreateMaterialCommitment(ctx context.Context, input *NewMaterialCommitment) (*MaterialCommitment, error) {

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	if err := input.validate(ctx, projectId); err != nil {
		return nil, err
	}

	commitment := input.toCommitment(projectId)

	db := config.GetDB()
	tx := db.Begin()

	if strings.TrimSpace(input.NewAreaName) != "" {
		var unitId *int
		if strings.TrimSpace(input.NewUnitName) != "" {
			unit, err := ensureUnit(tx.WithContext(ctx), projectId, input.NewUnitName, input.NewUnitFloor)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			unitId = &unit.ID
		}
		area, err := ensureArea(tx.WithContext(ctx), projectId, unitId, input.NewAreaName, "")
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		commitment.AreaId = &area.ID
	}

	if err := tx.WithContext(ctx).Create(&commitment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &commitment, nil
}

// UpdateMaterialCommitment is the manual edit path. received_at_job and
// ordered_qty are not part of the input; they only move through purchase
// order and ticket flows.
func UpdateMaterialCommitment(ctx context.Context, id int, input *NewMaterialCommitment) (*MaterialCommitment, error) {

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	if err := input.validate(ctx, projectId); err != nil {
		return nil, err
	}

	commitment, err := utils.FetchModel[MaterialCommitment](ctx, projectId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&commitment).Updates(map[string]interface{}{
		"AreaId":       input.AreaId,
		"ProductCode":  input.ProductCode,
		"ProductName":  input.ProductName,
		"ProductSpecs": input.ProductSpecs,
		"Category":     input.Category,
		"Unit":         input.Unit,
		"DimLength":    input.DimLength,
		"DimWidth":     input.DimWidth,
		"DimThickness": input.DimThickness,
		"SubLocation":  input.SubLocation,
		"Zone":         input.Zone,
		"NetQty":       input.NetQty,
		"WastePercent": input.WastePercent,
		"BudgetQty":    input.BudgetQty,
		"ShopStock":    input.ShopStock,
		"InTransit":    input.InTransit,
		"UnitCost":     input.UnitCost,
		"PcsPerUnit":   input.PcsPerUnit,
	}).Error
	if err != nil {
		return nil, err
	}

	return commitment, nil
}

func DeleteMaterialCommitment(ctx context.Context, id int) (*MaterialCommitment, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	commitment, err := utils.FetchModel[MaterialCommitment](ctx, projectId, id)
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&commitment).Error; err != nil {
		return nil, err
	}
	return commitment, nil
}

func GetMaterialCommitment(ctx context.Context, id int) (*MaterialCommitment, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	return utils.FetchModel[MaterialCommitment](ctx, projectId, id)
}

func ListMaterialCommitmentsByArea(ctx context.Context, areaId int) ([]*MaterialCommitment, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	db := config.GetDB()
	var commitments []*MaterialCommitment
	err := db.WithContext(ctx).
		Where("project_id = ? AND area_id = ?", projectId, areaId).
		Order("created_at ASC").
		Find(&commitments).Error
	if err != nil {
		return nil, err
	}
	return commitments, nil
}

func ListMaterialCommitmentsByProject(ctx context.Context) ([]*MaterialCommitment, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	return utils.FetchAllModels[MaterialCommitment](ctx, projectId)
}
