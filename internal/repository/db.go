// Package repository provides GORM-backed persistence for the chat service.
package repository

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chatty-app/chat-service/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config selects and tunes the database connection.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Open connects to the configured database. Driver errors are translated
// to gorm's portable errors so callers can match gorm.ErrDuplicatedKey.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	// SQLite allows one writer; a single connection serializes transactions.
	if cfg.Driver == DriverSQLite || cfg.Driver == "" {
		maxOpen = 1
	}
	maxIdle := maxOpen / 2
	if maxIdle < 1 {
		maxIdle = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate creates or updates the schema for every chat model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.ConversationMember{},
		&model.Message{},
		&model.MessageReaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := backfillSearch(db); err != nil {
		return fmt.Errorf("failed to backfill search columns: %w", err)
	}
	return nil
}

// backfillSearch fills folded search columns on rows written before the
// columns existed.
func backfillSearch(db *gorm.DB) error {
	var msgs []model.Message
	err := db.Where("search_text IS NULL OR search_text = ''").Where("content <> ''").
		FindInBatches(&msgs, 500, func(*gorm.DB, int) error {
			for i := range msgs {
				msgs[i].RefreshSearch()
				if err := db.Model(&msgs[i]).UpdateColumn("search_text", msgs[i].SearchText).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
	if err != nil {
		return err
	}

	var users []model.User
	return db.Where("search_email = ''").
		FindInBatches(&users, 500, func(*gorm.DB, int) error {
			for i := range users {
				users[i].RefreshSearch()
				err := db.Model(&users[i]).UpdateColumns(map[string]any{
					"search_name":     users[i].SearchName,
					"search_email":    users[i].SearchEmail,
					"search_username": users[i].SearchUsername,
				}).Error
				if err != nil {
					return err
				}
			}
			return nil
		}).Error
}
