package workflow

import (
	"fmt"

	"github.com/lalas825/jantile-tracker-v2-sub000/models"
	"github.com/shopspring/decimal"
)

type ReceiptMode string

const (
	ReceiptModeBulk     ReceiptMode = "Bulk"
	ReceiptModeGranular ReceiptMode = "Granular"
)

// EditedField marks which input the operator touched last. Derivation always
// starts from that field; the others are overwritten, never averaged.
type EditedField string

const (
	EditedFieldQty    EditedField = "qty"
	EditedFieldPieces EditedField = "pieces"
	EditedFieldCrates EditedField = "crates"
)

// CrateMultiplierUnit says how an operator-supplied crate multiplier is to
// be read when the catalog has no pieces_per_crate for the line.
type CrateMultiplierUnit string

const (
	CrateMultiplierPieces CrateMultiplierUnit = "pieces_per_crate"
	CrateMultiplierArea   CrateMultiplierUnit = "area_per_crate"
)

// ReceiptDescriptor is one line of a receipt batch, keyed by the purchase
// order line item.
type ReceiptDescriptor struct {
	LineItemId int         `json:"line_item_id" binding:"required"`
	Mode       ReceiptMode `json:"receipt_mode"`

	QtyReceived    decimal.Decimal `json:"qty_received"`
	PiecesReceived decimal.Decimal `json:"pieces_received"`
	CratesReceived decimal.Decimal `json:"crates_received"`
	LastEdited     EditedField     `json:"last_edited"`

	// Operator override used in Bulk mode when the line carries no
	// pieces_per_crate of its own.
	CrateMultiplier     decimal.Decimal     `json:"crate_multiplier"`
	CrateMultiplierUnit CrateMultiplierUnit `json:"crate_multiplier_unit"`

	Condition models.ReceiptCondition `json:"condition"`
	Notes     string                  `json:"notes"`
	PhotoUrl  string                  `json:"photo_url"`
}

var (
	decSqftDivisor = decimal.NewFromInt(144)
	decOne         = decimal.NewFromInt(1)
)

// SqftPerPiece is the per-piece coverage used to convert between pieces and
// quantity. Tile dimensions are in inches, so L*W/144 when both are known;
// a unit packed n pieces per carton covers 1/n of a unit per piece; with
// neither, one piece is one unit.
func SqftPerPiece(dimLength, dimWidth, pcsPerUnit decimal.Decimal) decimal.Decimal {
	if dimLength.IsPositive() && dimWidth.IsPositive() {
		return dimLength.Mul(dimWidth).Div(decSqftDivisor)
	}
	if pcsPerUnit.IsPositive() {
		return decOne.Div(pcsPerUnit)
	}
	return decOne
}

// ResolveReceiptQty turns a descriptor into (qty, pieces) in the line's
// unit. Every derivation starts from the operator's source field so chained
// edits never accumulate rounding error.
func ResolveReceiptQty(d *ReceiptDescriptor, line *models.POLineItem) (decimal.Decimal, decimal.Decimal, error) {
	if d == nil || line == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("receipt descriptor and line item are required")
	}

	perPiece := SqftPerPiece(line.DimLength, line.DimWidth, line.PcsPerUnit)

	switch d.Mode {
	case ReceiptModeBulk:
		return resolveBulk(d, line, perPiece)
	case ReceiptModeGranular, "":
		return resolveGranular(d, perPiece)
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown receipt mode %q", string(d.Mode))
	}
}

func resolveBulk(d *ReceiptDescriptor, line *models.POLineItem, perPiece decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if d.CratesReceived.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("crates_received cannot be negative")
	}

	if line.PiecesPerCrate.IsPositive() {
		pieces := d.CratesReceived.Mul(line.PiecesPerCrate)
		return pieces.Mul(perPiece), pieces, nil
	}

	if !d.CrateMultiplier.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("line %d has no pieces_per_crate; a crate multiplier is required for bulk receipt", d.LineItemId)
	}
	switch d.CrateMultiplierUnit {
	case CrateMultiplierArea:
		qty := d.CratesReceived.Mul(d.CrateMultiplier)
		return qty, qty.Div(perPiece), nil
	case CrateMultiplierPieces, "":
		pieces := d.CratesReceived.Mul(d.CrateMultiplier)
		return pieces.Mul(perPiece), pieces, nil
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown crate multiplier unit %q", string(d.CrateMultiplierUnit))
	}
}

func resolveGranular(d *ReceiptDescriptor, perPiece decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	edited := d.LastEdited
	if edited == "" {
		// older clients send only one field; take whichever is set
		if !d.PiecesReceived.IsZero() && d.QtyReceived.IsZero() {
			edited = EditedFieldPieces
		} else {
			edited = EditedFieldQty
		}
	}

	switch edited {
	case EditedFieldQty:
		if d.QtyReceived.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("qty_received cannot be negative")
		}
		return d.QtyReceived, d.QtyReceived.Div(perPiece), nil
	case EditedFieldPieces:
		if d.PiecesReceived.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("pieces_received cannot be negative")
		}
		return d.PiecesReceived.Mul(perPiece), d.PiecesReceived, nil
	case EditedFieldCrates:
		return decimal.Zero, decimal.Zero, fmt.Errorf("crates_received requires bulk receipt mode")
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown edited field %q", string(edited))
	}
}
