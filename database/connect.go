package database

import (
	"fmt"

	"cinema_pos/config"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func dialector(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
		}
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		}
		return mysql.Open(dsn), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Name + ".db"
		}
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Open connects with the configured driver without migrating.
func Open(cfg config.Database) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		if err := singleWriter(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// OpenSQLite opens a sqlite file (or ":memory:") restricted to a single connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := singleWriter(db); err != nil {
		return nil, err
	}
	return db, nil
}

func singleWriter(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Account{},
		&model.Theater{},
		&model.Product{},
		&model.StockLevel{},
		&model.Reservation{},
		&model.GatewayConfig{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderAudit{},
		&model.OrderSequence{},
		&model.TheaterRevision{},
		&model.OrderEvent{},
	)
}

func ConnectDB(cfg *config.Settings) error {
	db, err := Open(cfg.DB)
	if err != nil {
		return err
	}
	log.Infof("connection opened to %s database", cfg.DB.Driver)

	if err := Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database migrated")

	DB = db
	return nil
}
