package store

import (
	"database/sql"

	model "github.com/jeffsasaki/store-admin/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Migrate creates or updates the schema on an already open connection.
func Migrate(db *sql.DB) error {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	return gdb.AutoMigrate(
		&model.Store{},
		&model.Billboard{},
		&model.Category{},
		&model.Size{},
		&model.Color{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.WebhookEvent{},
		&model.OutboxEvent{},
	)
}
