package models

import (
	"log"

	"github.com/lalas825/jantile-tracker-v2-sub000/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Unit{}, &Area{},
		&MaterialCommitment{},
		&PurchaseOrder{}, &POLineItem{}, &DiscrepancyRecord{},
		&DeliveryTicket{}, &TicketItem{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
