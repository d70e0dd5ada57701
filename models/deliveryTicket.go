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

// DeliveryTicket moves shop stock toward the job site. Its lifecycle is
// forward-only; the ledger is touched exactly once, when an Inventory-bound
// ticket reaches received.
type DeliveryTicket struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	ProjectId     string               `gorm:"uniqueIndex:idx_ticket_number_per_project;not null" json:"project_id"`
	TicketNumber  string               `gorm:"size:100;uniqueIndex:idx_ticket_number_per_project;not null" json:"ticket_number" binding:"required"`
	CurrentStatus DeliveryTicketStatus `gorm:"type:enum('draft','pending_approval','scheduled','in_transit','received');not null" json:"current_status"`
	Destination   TicketDestination    `gorm:"type:enum('Inventory','Shop');not null" json:"destination"`
	ScheduledDate *time.Time           `gorm:"default:null" json:"scheduled_date"`
	RequestedBy   string               `gorm:"size:100" json:"requested_by"`
	Notes         string               `gorm:"type:text" json:"notes"`
	Items         []TicketItem         `gorm:"foreignKey:DeliveryTicketId" json:"items"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type TicketItem struct {
	ID               int             `gorm:"primary_key" json:"id"`
	DeliveryTicketId int             `gorm:"index;not null" json:"delivery_ticket_id"`
	MaterialId       int             `gorm:"index;not null" json:"material_id"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit             string          `gorm:"size:50" json:"unit"`
	ProductCode      string          `gorm:"size:100" json:"product_code"`
	ProductName      string          `gorm:"size:255" json:"product_name"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewDeliveryTicket struct {
	TicketNumber  string               `json:"ticket_number" binding:"required"`
	CurrentStatus DeliveryTicketStatus `json:"current_status"`
	Destination   TicketDestination    `json:"destination"`
	ScheduledDate *time.Time           `json:"scheduled_date"`
	RequestedBy   string               `json:"requested_by"`
	Notes         string               `json:"notes"`
	Items         []NewTicketItem      `json:"items"`
}

type NewTicketItem struct {
	MaterialId int             `json:"material_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
}

func (input *NewDeliveryTicket) validate(ctx context.Context, projectId string) error {
	if strings.TrimSpace(input.TicketNumber) == "" {
		return errors.New("ticket number is required")
	}
	if err := utils.ValidateUnique[DeliveryTicket](ctx, projectId, "ticket_number", input.TicketNumber, 0); err != nil {
		return err
	}
	if input.CurrentStatus != "" && !input.CurrentStatus.IsValid() {
		return fmt.Errorf("unknown ticket status %q", string(input.CurrentStatus))
	}
	if input.Destination != TicketDestinationInventory && input.Destination != TicketDestinationShop {
		return errors.New("destination must be Inventory or Shop")
	}
	if len(input.Items) == 0 {
		return errors.New("at least one ticket item is required")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("ticket item quantity must be greater than zero")
		}
		if err := utils.ValidateResourceId[MaterialCommitment](ctx, projectId, item.MaterialId); err != nil {
			return fmt.Errorf("material %d not found", item.MaterialId)
		}
	}
	return nil
}

// CreateDeliveryTicket creates a ticket at any point of the lifecycle.
// Back-entered paperwork created directly as received applies its ledger
// side effects immediately, in the same transaction as the insert.
func CreateDeliveryTicket(ctx context.Context, input *NewDeliveryTicket) (*DeliveryTicket, error) {
	db := config.GetDB()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	if err := input.validate(ctx, projectId); err != nil {
		return nil, err
	}

	status := input.CurrentStatus
	if status == "" {
		status = DeliveryTicketStatusDraft
	}

	ticket := DeliveryTicket{
		ProjectId:     projectId,
		TicketNumber:  input.TicketNumber,
		CurrentStatus: status,
		Destination:   input.Destination,
		ScheduledDate: input.ScheduledDate,
		RequestedBy:   input.RequestedBy,
		Notes:         input.Notes,
	}
	if ticket.RequestedBy == "" {
		if userName, ok := utils.GetUserNameFromContext(ctx); ok {
			ticket.RequestedBy = userName
		}
	}

	if status == DeliveryTicketStatusReceived && ticket.Destination == TicketDestinationInventory {
		release, err := utils.ProjectLock(ctx, projectId, "ledgerLock", "deliveryTicket.go", "CreateDeliveryTicket")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	tx := db.Begin()

	for _, item := range input.Items {
		var m MaterialCommitment
		if err := tx.WithContext(ctx).Where("project_id = ?", projectId).First(&m, item.MaterialId).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("material %d not found", item.MaterialId)
		}
		unit := item.Unit
		if unit == "" {
			unit = m.Unit
		}
		ticket.Items = append(ticket.Items, TicketItem{
			MaterialId:  item.MaterialId,
			Quantity:    item.Quantity,
			Unit:        unit,
			ProductCode: m.ProductCode,
			ProductName: m.ProductName,
		})
	}

	if err := tx.WithContext(ctx).Create(&ticket).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if status == DeliveryTicketStatusReceived {
		if err := ApplyTicketReceipt(tx.WithContext(ctx), &ticket); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &ticket, nil
}

// AdvanceDeliveryTicket moves the ticket exactly one step forward. The
// final step into received is where an Inventory-bound ticket mutates the
// ledger; the status change and the ledger update share one transaction.
func AdvanceDeliveryTicket(ctx context.Context, id int) (*DeliveryTicket, error) {
	db := config.GetDB()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	ticket, err := utils.FetchModel[DeliveryTicket](ctx, projectId, id, "Items")
	if err != nil {
		return nil, errors.New("delivery ticket not found")
	}

	next, err := NextDeliveryTicketStatus(ticket.CurrentStatus)
	if err != nil {
		return nil, err
	}

	if next == DeliveryTicketStatusReceived && ticket.Destination == TicketDestinationInventory {
		release, err := utils.ProjectLock(ctx, projectId, "ledgerLock", "deliveryTicket.go", "AdvanceDeliveryTicket")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	tx := db.Begin()

	if err := tx.WithContext(ctx).Model(ticket).Update("CurrentStatus", next).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	ticket.CurrentStatus = next

	if next == DeliveryTicketStatusReceived {
		if err := ApplyTicketReceipt(tx.WithContext(ctx), ticket); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return ticket, nil
}

// DeleteDeliveryTicket removes a ticket that has not reached received.
// Received tickets have already moved material and stay on record.
func DeleteDeliveryTicket(ctx context.Context, id int) (*DeliveryTicket, error) {
	db := config.GetDB()

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	ticket, err := utils.FetchModel[DeliveryTicket](ctx, projectId, id, "Items")
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if ticket.CurrentStatus == DeliveryTicketStatusReceived {
		return nil, errors.New("a received ticket cannot be deleted")
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("delivery_ticket_id = ?", ticket.ID).Delete(&TicketItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&ticket).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return ticket, nil
}

func GetDeliveryTicket(ctx context.Context, id int) (*DeliveryTicket, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	return utils.FetchModel[DeliveryTicket](ctx, projectId, id, "Items")
}

func ListDeliveryTickets(ctx context.Context, status *DeliveryTicketStatus) ([]*DeliveryTicket, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("project_id = ?", projectId)
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var tickets []*DeliveryTicket
	err := dbCtx.Preload("Items").Order("created_at DESC").Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
