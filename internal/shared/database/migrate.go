package database

import (
	"summitpass/internal/orders"
	"summitpass/internal/reservations"
	"summitpass/internal/stock"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&stock.TicketTypeStock{},
		&reservations.Reservation{},
		&orders.Order{},
	)
}
