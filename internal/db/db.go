package db

import (
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Registers the pure Go "sqlite" database/sql driver.

	"github.com/vietanh2810/sdeconomy/internal/config"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to the configured storage driver.
func Open(conf *config.AppConfig) (*gorm.DB, error) {
	switch conf.Storage.Driver {
	case "postgres":
		if conf.Storage.DSN != "" {
			return OpenPostgresWithURL(conf.Storage.DSN)
		}
		return OpenPostgres(conf.Postgres)
	case "mysql":
		return OpenMySQL(conf.Storage.DSN)
	case "sqlite":
		return OpenSQLite(conf.Storage.DSN)
	default:
		return nil, fmt.Errorf("%w, got %q", config.ErrUnknownDriver, conf.Storage.Driver)
	}
}

func OpenPostgres(conf *config.PostgresConfig) (*gorm.DB, error) {
	sslMode := conf.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		conf.Host, conf.User, conf.Password, conf.DB, conf.Port, sslMode)

	return OpenPostgresWithURL(dsn)
}

func OpenPostgresWithURL(url string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gorm.Open(postgres) -> %w", err)
	}

	return db, nil
}

// OpenMySQL forces parseTime so DATETIME columns scan into time.Time.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql.ParseDSN -> %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := gorm.Open(mysql.New(mysql.Config{DSN: cfg.FormatDSN(), DSNConfig: cfg}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gorm.Open(mysql) -> %w", err)
	}

	return db, nil
}

// OpenSQLite opens an embedded database file with foreign keys enforced, so
// ledger rows cascade with their product. SQLite allows a single writer, so
// the pool is limited to one connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gorm.Open(sqlite) -> %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db.DB -> %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db.DB -> %w", err)
	}
	return sqlDB.Close()
}
