package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open resolves the DSN, opens the sqlite database through gorm and
// applies the pool and pragma settings from cfg. Migrations run here
// when cfg.AutoMigrate is set so that both the bot and the API server
// can be pointed at a fresh file.
func Open(cfg Config) (*gorm.DB, error) {
	dsn, err := ResolveSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite dsn: %w", err)
	}
	dsn = withSQLiteParams(dsn, cfg.SQLite)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := AutoMigrate(gdb); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return gdb, nil
}

func withSQLiteParams(dsn string, cfg SQLiteConfig) string {
	params := url.Values{}
	if cfg.BusyTimeoutMs > 0 {
		params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeoutMs))
	}
	if cfg.WAL {
		params.Set("_journal_mode", "WAL")
	}
	if cfg.ForeignKeys {
		params.Set("_foreign_keys", "on")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}
