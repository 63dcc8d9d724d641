package store

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens the service database. sqlite is the default and what we run in
// production; path defaults to studiopix.db next to the binary.
func Open(path string, debug bool) (*gorm.DB, error) {
	if path == "" {
		path = "studiopix.db"
	}
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite writers serialize anyway; a single open connection avoids
	// SQLITE_BUSY under webhook bursts.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
