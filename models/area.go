package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"gorm.io/gorm"
)

// Unit is a floor-level grouping of work areas (e.g. "Unit 4B, Floor 12").
type Unit struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ProjectId  string    `gorm:"index;not null" json:"project_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	FloorLabel string    `gorm:"size:100" json:"floor_label"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUnit struct {
	Name       string `json:"name" binding:"required"`
	FloorLabel string `json:"floor_label"`
}

// Area is a work area inside a unit. Material commitments reference it.
type Area struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ProjectId   string    `gorm:"index;not null" json:"project_id"`
	UnitId      *int      `gorm:"index;default:null" json:"unit_id"`
	Name        string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Description string    `gorm:"size:255;default:null" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewArea struct {
	UnitId      *int   `json:"unit_id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func CreateUnit(ctx context.Context, input *NewUnit) (*Unit, error) {

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	if err := utils.ValidateUnique[Unit](ctx, projectId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	unit := Unit{
		ProjectId:  projectId,
		Name:       input.Name,
		FloorLabel: input.FloorLabel,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&unit).Error
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func CreateArea(ctx context.Context, input *NewArea) (*Area, error) {

	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	if err := input.validate(ctx, projectId); err != nil {
		return nil, err
	}

	area := Area{
		ProjectId:   projectId,
		UnitId:      input.UnitId,
		Name:        input.Name,
		Description: input.Description,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&area).Error
	if err != nil {
		return nil, err
	}
	return &area, nil
}

func (input *NewArea) validate(ctx context.Context, projectId string) error {
	if strings.TrimSpace(input.Name) == "" {
		return errors.New("area name is required")
	}
	if input.UnitId != nil {
		if err := utils.ValidateResourceId[Unit](ctx, projectId, *input.UnitId); err != nil {
			return errors.New("unit not found")
		}
	}
	return nil
}

func GetArea(ctx context.Context, id int) (*Area, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	return utils.FetchModel[Area](ctx, projectId, id)
}

func ListAreas(ctx context.Context) ([]*Area, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}
	db := config.GetDB()
	var areas []*Area
	err := db.WithContext(ctx).
		Where("project_id = ?", projectId).
		Order("created_at ASC").
		Find(&areas).Error
	if err != nil {
		return nil, err
	}
	return areas, nil
}

// DeleteArea removes an area and its commitments in one transaction.
func DeleteArea(ctx context.Context, id int) (*Area, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	area, err := utils.FetchModel[Area](ctx, projectId, id)
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).
		Where("project_id = ? AND area_id = ?", projectId, id).
		Delete(&MaterialCommitment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Delete(&area).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return area, nil
}

// ensureUnit finds a unit by name or creates it inside the caller's tx.
// Idempotent: a retried command after a partial failure will not
// double-create.
func ensureUnit(tx *gorm.DB, projectId string, name string, floorLabel string) (*Unit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("unit name is required")
	}
	var unit Unit
	err := tx.Where("project_id = ? AND name = ?", projectId, name).First(&unit).Error
	if err == nil {
		return &unit, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	unit = Unit{ProjectId: projectId, Name: name, FloorLabel: floorLabel}
	if err := tx.Create(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// ensureArea finds an area by name (within an optional unit) or creates it
// inside the caller's tx.
func ensureArea(tx *gorm.DB, projectId string, unitId *int, name string, description string) (*Area, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("area name is required")
	}
	var area Area
	q := tx.Where("project_id = ? AND name = ?", projectId, name)
	if unitId != nil {
		q = q.Where("unit_id = ?", *unitId)
	}
	err := q.First(&area).Error
	if err == nil {
		return &area, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	area = Area{ProjectId: projectId, UnitId: unitId, Name: name, Description: description}
	if err := tx.Create(&area).Error; err != nil {
		return nil, err
	}
	return &area, nil
}
