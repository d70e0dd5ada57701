package models

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"github.com/shopspring/decimal"
)

// AggregatedMaterial is one row per distinct product identity across the
// whole project. Derived, never persisted.
type AggregatedMaterial struct {
	GroupKey     string           `json:"group_key"`
	ProductCode  string           `json:"product_code"`
	ProductName  string           `json:"product_name"`
	ProductSpecs string           `json:"product_specs"`
	Category     MaterialCategory `json:"category"`
	Unit         string           `json:"unit"`
	DimLength    decimal.Decimal  `json:"dim_length"`
	DimWidth     decimal.Decimal  `json:"dim_width"`
	DimThickness decimal.Decimal  `json:"dim_thickness"`

	NetQty        decimal.Decimal `json:"net_qty"`
	WasteQty      decimal.Decimal `json:"waste_qty"`
	BudgetQty     decimal.Decimal `json:"budget_qty"`
	OrderedQty    decimal.Decimal `json:"ordered_qty"`
	ShopStock     decimal.Decimal `json:"shop_stock"`
	InTransit     decimal.Decimal `json:"in_transit"`
	ReceivedAtJob decimal.Decimal `json:"received_at_job"`
	TotalValue    decimal.Decimal `json:"total_value"`

	SubLocations []string `json:"sub_locations"`
	Zones        []string `json:"zones"`
	// AllIds carries every contributing commitment id, for cross-referencing
	// active purchase orders against the aggregated row.
	AllIds []int `json:"all_ids"`
}

// AreaBucket is the aggregation view's area grouping. Virtual buckets cover
// commitments whose area is missing or was deleted; they exist only in this
// view and are recomputed on every pass.
type AreaBucket struct {
	Key         string                `json:"key"`
	Name        string                `json:"name"`
	Virtual     bool                  `json:"virtual"`
	Area        *Area                 `json:"area,omitempty"`
	Commitments []*MaterialCommitment `json:"commitments"`
}

// ProjectAggregation is the full derived view for one project.
type ProjectAggregation struct {
	Materials []*AggregatedMaterial `json:"materials"`
	Areas     []*AreaBucket         `json:"areas"`
}

// GroupingKey builds the identity key: product code (falling back to name)
// + dimensions + unit. Grout groups by code + specs + unit since dimensions
// are not meaningful for grout.
func GroupingKey(m *MaterialCommitment) string {
	ident := strings.TrimSpace(m.ProductCode)
	if ident == "" {
		ident = strings.TrimSpace(m.ProductName)
	}
	if m.Category == MaterialCategoryGrout {
		return strings.Join([]string{ident, strings.TrimSpace(m.ProductSpecs), m.Unit}, "|")
	}
	dims := m.DimLength.String() + "x" + m.DimWidth.String() + "x" + m.DimThickness.String()
	return strings.Join([]string{ident, dims, m.Unit}, "|")
}

// AggregateMaterials groups commitments by identity and sums the quantity
// columns. Pure: same input always yields the same rows, sorted by key.
func AggregateMaterials(commitments []*MaterialCommitment) []*AggregatedMaterial {
	byKey := make(map[string]*AggregatedMaterial)

	for _, m := range commitments {
		key := GroupingKey(m)
		agg, ok := byKey[key]
		if !ok {
			agg = &AggregatedMaterial{
				GroupKey:     key,
				ProductCode:  m.ProductCode,
				ProductName:  m.ProductName,
				ProductSpecs: m.ProductSpecs,
				Category:     m.Category,
				Unit:         m.Unit,
				DimLength:    m.DimLength,
				DimWidth:     m.DimWidth,
				DimThickness: m.DimThickness,
			}
			byKey[key] = agg
		}
		agg.NetQty = agg.NetQty.Add(m.NetQty)
		agg.WasteQty = agg.WasteQty.Add(m.WasteQty())
		agg.BudgetQty = agg.BudgetQty.Add(m.BudgetQty)
		agg.OrderedQty = agg.OrderedQty.Add(m.OrderedQty)
		agg.ShopStock = agg.ShopStock.Add(m.ShopStock)
		agg.InTransit = agg.InTransit.Add(m.InTransit)
		agg.ReceivedAtJob = agg.ReceivedAtJob.Add(m.ReceivedAtJob)
		agg.TotalValue = agg.TotalValue.Add(m.TotalValue())

		if m.SubLocation != "" {
			agg.SubLocations = appendUnique(agg.SubLocations, m.SubLocation)
		}
		if m.Zone != "" {
			agg.Zones = appendUnique(agg.Zones, m.Zone)
		}
		agg.AllIds = append(agg.AllIds, m.ID)
	}

	rows := make([]*AggregatedMaterial, 0, len(byKey))
	for _, agg := range byKey {
		rows = append(rows, agg)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].GroupKey < rows[j].GroupKey })
	return rows
}

const unassignedBucketKey = "unassigned"

// BuildAreaBuckets groups commitments under their areas, re-keying orphans
// (missing or dangling area_id) into virtual buckets: per sub-location when
// one is set, otherwise a single Unassigned/Global bucket. Ordering:
// unassigned first, then virtual location buckets by name, then persisted
// areas chronologically.
func BuildAreaBuckets(commitments []*MaterialCommitment, areas []*Area) []*AreaBucket {
	areaById := make(map[int]*Area, len(areas))
	for _, a := range areas {
		areaById[a.ID] = a
	}

	buckets := make(map[string]*AreaBucket)

	bucketFor := func(m *MaterialCommitment) *AreaBucket {
		if m.AreaId != nil {
			if a, ok := areaById[*m.AreaId]; ok {
				key := "area:" + strconv.Itoa(a.ID)
				b, ok := buckets[key]
				if !ok {
					b = &AreaBucket{Key: key, Name: a.Name, Area: a}
					buckets[key] = b
				}
				return b
			}
		}
		// orphaned: virtual bucket, recomputed on every pass
		if m.SubLocation != "" {
			key := "loc:" + m.SubLocation
			b, ok := buckets[key]
			if !ok {
				b = &AreaBucket{Key: key, Name: m.SubLocation, Virtual: true}
				buckets[key] = b
			}
			return b
		}
		b, ok := buckets[unassignedBucketKey]
		if !ok {
			b = &AreaBucket{Key: unassignedBucketKey, Name: "Unassigned / Global", Virtual: true}
			buckets[unassignedBucketKey] = b
		}
		return b
	}

	for _, m := range commitments {
		b := bucketFor(m)
		b.Commitments = append(b.Commitments, m)
	}

	// every persisted area shows up even when it has no commitments yet
	for _, a := range areas {
		key := "area:" + strconv.Itoa(a.ID)
		if _, ok := buckets[key]; !ok {
			buckets[key] = &AreaBucket{Key: key, Name: a.Name, Area: a}
		}
	}

	out := make([]*AreaBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i], out[j]
		if bi.Virtual != bj.Virtual {
			return bi.Virtual
		}
		if bi.Virtual {
			if (bi.Key == unassignedBucketKey) != (bj.Key == unassignedBucketKey) {
				return bi.Key == unassignedBucketKey
			}
			return bi.Name < bj.Name
		}
		if !bi.Area.CreatedAt.Equal(bj.Area.CreatedAt) {
			return bi.Area.CreatedAt.Before(bj.Area.CreatedAt)
		}
		return bi.Area.ID < bj.Area.ID
	})
	return out
}

// AggregateProject loads the project's ledger and derives the aggregation
// view. Always recomputed; nothing here is persisted or cached.
func AggregateProject(ctx context.Context) (*ProjectAggregation, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, errors.New("project id is required")
	}

	commitments, err := ListMaterialCommitmentsByProject(ctx)
	if err != nil {
		return nil, err
	}
	areas, err := ListAreas(ctx)
	if err != nil {
		return nil, err
	}

	return &ProjectAggregation{
		Materials: AggregateMaterials(commitments),
		Areas:     BuildAreaBuckets(commitments, areas),
	}, nil
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}
