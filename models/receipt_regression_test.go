package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/lalas825/jantile-tracker-v2-sub000/config"
	"github.com/lalas825/jantile-tracker-v2-sub000/models"
	"github.com/lalas825/jantile-tracker-v2-sub000/utils"
	"github.com/lalas825/jantile-tracker-v2-sub000/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end receiving pass against real MySQL + Redis: order two materials,
// receive one short, and verify the ledger, the discrepancy record, the
// final status, and the reorder draft.
func TestPurchaseOrderReceiptUpdatesLedger(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "jantile_test")
	// Helpful to see logs in CI when debugging failures.
	t.Setenv("DEBUG_RECEIPT", "true")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	models.MigrateTable()

	ctx = utils.SetProjectIdInContext(ctx, "proj-test")
	ctx = utils.SetUserNameInContext(ctx, "Test")

	// Two commitments: 12x24 tile (2 sqft per piece) and thinset by the bag.
	tileCommitment, err := models.CreateMaterialCommitment(ctx, &models.NewMaterialCommitment{
		ProductCode: "CAR-1224",
		ProductName: "Carrara 12x24",
		Category:    models.MaterialCategoryTile,
		Unit:        "sqft",
		DimLength:   decimal.NewFromInt(12),
		DimWidth:    decimal.NewFromInt(24),
		NetQty:      decimal.NewFromInt(100),
		BudgetQty:   decimal.NewFromInt(110),
	})
	if err != nil {
		t.Fatalf("CreateMaterialCommitment tile: %v", err)
	}
	thinset, err := models.CreateMaterialCommitment(ctx, &models.NewMaterialCommitment{
		ProductName: "Thinset 50lb",
		Category:    models.MaterialCategorySettingMaterials,
		Unit:        "bag",
		NetQty:      decimal.NewFromInt(20),
		BudgetQty:   decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("CreateMaterialCommitment thinset: %v", err)
	}

	po, warnings, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		PONumber:      "PO-1001",
		VendorName:    "Daltile",
		CurrentStatus: models.PurchaseOrderStatusOrdered,
		LineItems: []models.NewPOLineItem{
			{MaterialId: tileCommitment.ID, QuantityOrdered: decimal.NewFromInt(100)},
			{MaterialId: thinset.ID, QuantityOrdered: decimal.NewFromInt(20)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected over-budget warnings: %v", warnings)
	}

	// placing the order committed the quantities
	tileAfterOrder, err := models.GetMaterialCommitment(ctx, tileCommitment.ID)
	if err != nil {
		t.Fatalf("GetMaterialCommitment: %v", err)
	}
	if !tileAfterOrder.OrderedQty.Equal(decimal.NewFromInt(100)) || !tileAfterOrder.InTransit.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("after ordering: ordered=%s in_transit=%s, want 100/100", tileAfterOrder.OrderedQty, tileAfterOrder.InTransit)
	}

	// Receive: tile 10 sqft short, thinset complete.
	var tileLine, thinsetLine models.POLineItem
	for _, line := range po.LineItems {
		switch line.MaterialId {
		case tileCommitment.ID:
			tileLine = line
		case thinset.ID:
			thinsetLine = line
		}
	}

	result, err := workflow.ApplyReceipt(ctx, po.ID, []workflow.ReceiptDescriptor{
		{
			LineItemId:  tileLine.ID,
			Mode:        workflow.ReceiptModeGranular,
			QtyReceived: decimal.NewFromInt(90),
			LastEdited:  workflow.EditedFieldQty,
			Condition:   models.ReceiptConditionVerified,
			Notes:       "one crate short",
		},
		{
			LineItemId:  thinsetLine.ID,
			Mode:        workflow.ReceiptModeGranular,
			QtyReceived: decimal.NewFromInt(20),
			LastEdited:  workflow.EditedFieldQty,
			Condition:   models.ReceiptConditionVerified,
		},
	})
	if err != nil {
		t.Fatalf("ApplyReceipt: %v", err)
	}

	if result.PurchaseOrder.CurrentStatus != models.PurchaseOrderStatusDiscrepancy {
		t.Fatalf("final status = %s, want Received with Discrepancy", result.PurchaseOrder.CurrentStatus)
	}
	if len(result.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %d, want 1", len(result.Discrepancies))
	}
	record := result.Discrepancies[0]
	if record.MaterialId != tileCommitment.ID {
		t.Fatalf("discrepancy material = %d, want %d", record.MaterialId, tileCommitment.ID)
	}
	if !record.Difference.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("difference = %s, want 10", record.Difference)
	}
	if record.ConditionFlag != models.ConditionFlagMissing {
		t.Fatalf("flag = %s, want M", record.ConditionFlag)
	}

	tileAfterReceipt, err := models.GetMaterialCommitment(ctx, tileCommitment.ID)
	if err != nil {
		t.Fatalf("GetMaterialCommitment: %v", err)
	}
	if !tileAfterReceipt.ReceivedAtJob.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("received_at_job = %s, want 90", tileAfterReceipt.ReceivedAtJob)
	}
	if !tileAfterReceipt.InTransit.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("in_transit = %s, want 10", tileAfterReceipt.InTransit)
	}
	thinsetAfterReceipt, err := models.GetMaterialCommitment(ctx, thinset.ID)
	if err != nil {
		t.Fatalf("GetMaterialCommitment: %v", err)
	}
	if !thinsetAfterReceipt.ReceivedAtJob.Equal(decimal.NewFromInt(20)) || !thinsetAfterReceipt.InTransit.IsZero() {
		t.Fatalf("thinset received=%s in_transit=%s, want 20/0", thinsetAfterReceipt.ReceivedAtJob, thinsetAfterReceipt.InTransit)
	}

	// A hand-entered order already holds the next number in the reorder
	// sequence; the generated number must step past it.
	_, _, err = models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		PONumber:      "PO-1001-R2",
		VendorName:    "Daltile",
		CurrentStatus: models.PurchaseOrderStatusDraft,
		LineItems: []models.NewPOLineItem{
			{MaterialId: tileCommitment.ID, QuantityOrdered: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder hand-numbered draft: %v", err)
	}

	// Reorder picks up only the shortfall, as a draft, without ledger changes.
	reorder, err := workflow.CreateReorder(ctx, po.ID)
	if err != nil {
		t.Fatalf("CreateReorder: %v", err)
	}
	if reorder.PONumber != "PO-1001-R3" {
		t.Fatalf("reorder number = %s, want PO-1001-R3", reorder.PONumber)
	}
	if reorder.CurrentStatus != models.PurchaseOrderStatusDraft {
		t.Fatalf("reorder status = %s, want Draft", reorder.CurrentStatus)
	}
	if reorder.ReorderOfId == nil || *reorder.ReorderOfId != po.ID {
		t.Fatalf("reorder_of_id = %v, want %d", reorder.ReorderOfId, po.ID)
	}
	if len(reorder.LineItems) != 1 {
		t.Fatalf("reorder lines = %d, want 1", len(reorder.LineItems))
	}
	if !reorder.LineItems[0].QuantityOrdered.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("reorder qty = %s, want 10", reorder.LineItems[0].QuantityOrdered)
	}
	tileAfterReorder, err := models.GetMaterialCommitment(ctx, tileCommitment.ID)
	if err != nil {
		t.Fatalf("GetMaterialCommitment: %v", err)
	}
	if !tileAfterReorder.InTransit.Equal(tileAfterReceipt.InTransit) {
		t.Fatal("a draft reorder must not touch the ledger")
	}

	// A ticket delivery to the job site moves in_transit into received_at_job
	// and nothing else; shop_stock is inventory-internal and stays as-is.
	grout, err := models.CreateMaterialCommitment(ctx, &models.NewMaterialCommitment{
		ProductName: "Gray Grout 25lb",
		Category:    models.MaterialCategoryGrout,
		Unit:        "bag",
		BudgetQty:   decimal.NewFromInt(12),
		ShopStock:   decimal.NewFromInt(8),
		InTransit:   decimal.NewFromInt(4),
	})
	if err != nil {
		t.Fatalf("CreateMaterialCommitment grout: %v", err)
	}
	ticket, err := models.CreateDeliveryTicket(ctx, &models.NewDeliveryTicket{
		TicketNumber:  "DT-2001",
		CurrentStatus: models.DeliveryTicketStatusInTransit,
		Destination:   models.TicketDestinationInventory,
		Items: []models.NewTicketItem{
			{MaterialId: grout.ID, Quantity: decimal.NewFromInt(4)},
		},
	})
	if err != nil {
		t.Fatalf("CreateDeliveryTicket: %v", err)
	}
	received, err := models.AdvanceDeliveryTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("AdvanceDeliveryTicket: %v", err)
	}
	if received.CurrentStatus != models.DeliveryTicketStatusReceived {
		t.Fatalf("ticket status = %s, want received", received.CurrentStatus)
	}
	groutAfterTicket, err := models.GetMaterialCommitment(ctx, grout.ID)
	if err != nil {
		t.Fatalf("GetMaterialCommitment: %v", err)
	}
	if !groutAfterTicket.ReceivedAtJob.Equal(decimal.NewFromInt(4)) || !groutAfterTicket.InTransit.IsZero() {
		t.Fatalf("grout received=%s in_transit=%s, want 4/0", groutAfterTicket.ReceivedAtJob, groutAfterTicket.InTransit)
	}
	if !groutAfterTicket.ShopStock.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("shop_stock = %s, want 8 unchanged", groutAfterTicket.ShopStock)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("jantile-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("jantile-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=jantile_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
