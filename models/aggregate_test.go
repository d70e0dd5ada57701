package models

import (
	"testing"
	"time"
)

func tile(id int, code string, dimL, dimW string, areaId *int, subLocation string) *MaterialCommitment {
	return &MaterialCommitment{
		ID:          id,
		ProductCode: code,
		ProductName: "Tile " + code,
		Category:    MaterialCategoryTile,
		Unit:        "sqft",
		DimLength:   dec(dimL),
		DimWidth:    dec(dimW),
		AreaId:      areaId,
		SubLocation: subLocation,
	}
}

func TestGroupingKey(t *testing.T) {
	a := tile(1, "CAR-1224", "12", "24", nil, "")
	b := tile(2, "CAR-1224", "12", "24", nil, "")
	if GroupingKey(a) != GroupingKey(b) {
		t.Fatal("identical products must share a grouping key")
	}

	c := tile(3, "CAR-1224", "12", "12", nil, "")
	if GroupingKey(a) == GroupingKey(c) {
		t.Fatal("different dimensions must split the group")
	}

	// code falls back to name
	d := tile(4, "", "12", "24", nil, "")
	e := tile(5, "", "12", "24", nil, "")
	d.ProductName = "Unlabeled"
	e.ProductName = "Unlabeled"
	if GroupingKey(d) != GroupingKey(e) {
		t.Fatal("products without a code must group by name")
	}

	// grout ignores dimensions, groups by specs
	g1 := &MaterialCommitment{Category: MaterialCategoryGrout, ProductCode: "G-100", ProductSpecs: "Sanded/Gray", Unit: "lb", DimLength: dec("1")}
	g2 := &MaterialCommitment{Category: MaterialCategoryGrout, ProductCode: "G-100", ProductSpecs: "Sanded/Gray", Unit: "lb", DimLength: dec("9")}
	if GroupingKey(g1) != GroupingKey(g2) {
		t.Fatal("grout grouping must not depend on dimensions")
	}
	g3 := &MaterialCommitment{Category: MaterialCategoryGrout, ProductCode: "G-100", ProductSpecs: "Unsanded/Gray", Unit: "lb"}
	if GroupingKey(g1) == GroupingKey(g3) {
		t.Fatal("grout with different specs must split the group")
	}
}

func TestAggregateMaterialsSumsAcrossAreas(t *testing.T) {
	kitchen, bath := 1, 2
	a := tile(1, "CAR-1224", "12", "24", &kitchen, "Floor 1")
	a.NetQty = dec("100")
	a.BudgetQty = dec("110")
	a.ShopStock = dec("10")
	a.UnitCost = dec("2")
	b := tile(2, "CAR-1224", "12", "24", &bath, "Floor 2")
	b.NetQty = dec("50")
	b.BudgetQty = dec("55")
	b.InTransit = dec("5")
	b.UnitCost = dec("2")
	other := tile(3, "MOS-22", "2", "2", &kitchen, "")
	other.NetQty = dec("30")

	rows := AggregateMaterials([]*MaterialCommitment{a, b, other})
	if len(rows) != 2 {
		t.Fatalf("expected 2 aggregated rows, got %d", len(rows))
	}

	var car *AggregatedMaterial
	for _, row := range rows {
		if row.ProductCode == "CAR-1224" {
			car = row
		}
	}
	if car == nil {
		t.Fatal("missing CAR-1224 row")
	}
	if !car.NetQty.Equal(dec("150")) || !car.BudgetQty.Equal(dec("165")) {
		t.Fatalf("net/budget = %s/%s, want 150/165", car.NetQty, car.BudgetQty)
	}
	if !car.TotalValue.Equal(dec("330")) {
		t.Fatalf("total value = %s, want 330", car.TotalValue)
	}
	if len(car.AllIds) != 2 {
		t.Fatalf("all ids = %v, want both contributing commitments", car.AllIds)
	}
	if len(car.SubLocations) != 2 {
		t.Fatalf("sub locations = %v, want Floor 1 and Floor 2", car.SubLocations)
	}
}

func TestAggregateMaterialsIsDeterministic(t *testing.T) {
	commitments := []*MaterialCommitment{
		tile(1, "B", "12", "24", nil, ""),
		tile(2, "A", "12", "24", nil, ""),
		tile(3, "C", "6", "6", nil, ""),
	}
	first := AggregateMaterials(commitments)
	second := AggregateMaterials(commitments)
	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].GroupKey != second[i].GroupKey {
			t.Fatalf("row %d ordering differs: %s vs %s", i, first[i].GroupKey, second[i].GroupKey)
		}
	}
}

func TestBuildAreaBuckets(t *testing.T) {
	now := time.Now()
	kitchen := &Area{ID: 1, Name: "Kitchen", CreatedAt: now}
	bath := &Area{ID: 2, Name: "Bath", CreatedAt: now.Add(time.Minute)}
	empty := &Area{ID: 3, Name: "Lobby", CreatedAt: now.Add(2 * time.Minute)}
	areas := []*Area{kitchen, bath, empty}

	kid := 1
	dangling := 99
	commitments := []*MaterialCommitment{
		tile(1, "A", "12", "24", &kid, ""),
		tile(2, "B", "12", "24", &dangling, "Penthouse"), // deleted area, has sub-location
		tile(3, "C", "12", "24", nil, ""),                // no area, no sub-location
	}
	bid := 2
	commitments = append(commitments, tile(4, "D", "6", "6", &bid, ""))

	buckets := BuildAreaBuckets(commitments, areas)
	if len(buckets) != 5 {
		t.Fatalf("expected 5 buckets, got %d", len(buckets))
	}

	// virtual buckets first, unassigned leading
	if !buckets[0].Virtual || buckets[0].Name != "Unassigned / Global" {
		t.Fatalf("bucket 0 = %+v, want the unassigned virtual bucket", buckets[0])
	}
	if !buckets[1].Virtual || buckets[1].Name != "Penthouse" {
		t.Fatalf("bucket 1 = %+v, want the Penthouse virtual bucket", buckets[1])
	}

	// persisted areas chronological, including the empty one
	names := []string{buckets[2].Name, buckets[3].Name, buckets[4].Name}
	want := []string{"Kitchen", "Bath", "Lobby"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("persisted bucket order = %v, want %v", names, want)
		}
	}
	if len(buckets[4].Commitments) != 0 {
		t.Fatal("Lobby has no commitments and must still appear empty")
	}

	// recomputing yields the same shape
	again := BuildAreaBuckets(commitments, areas)
	for i := range buckets {
		if buckets[i].Key != again[i].Key {
			t.Fatalf("bucket ordering unstable at %d: %s vs %s", i, buckets[i].Key, again[i].Key)
		}
	}
}

func TestBuildAreaBucketsKeepsDuplicateNamesApart(t *testing.T) {
	// two units can each have a "Bathroom"; the view must not merge them
	now := time.Now()
	firstId, secondId := 1, 2
	unitA, unitB := 1, 2
	first := &Area{ID: firstId, Name: "Bathroom", UnitId: &unitA, CreatedAt: now}
	second := &Area{ID: secondId, Name: "Bathroom", UnitId: &unitB, CreatedAt: now.Add(time.Minute)}
	areas := []*Area{first, second}

	commitments := []*MaterialCommitment{
		tile(1, "A", "12", "24", &firstId, ""),
		tile(2, "B", "12", "24", &secondId, ""),
	}

	buckets := BuildAreaBuckets(commitments, areas)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets for 2 distinct areas, got %d", len(buckets))
	}
	if buckets[0].Area.ID != first.ID || buckets[1].Area.ID != second.ID {
		t.Fatalf("bucket areas = %d, %d, want %d then %d", buckets[0].Area.ID, buckets[1].Area.ID, first.ID, second.ID)
	}
	for i, want := range []int{1, 1} {
		if len(buckets[i].Commitments) != want {
			t.Fatalf("bucket %d holds %d commitments, want %d", i, len(buckets[i].Commitments), want)
		}
	}
}
