package db

import (
	"fmt"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSeq atomic.Int64

// NewTest opens an isolated in-memory sqlite database. A single connection is
// kept open so the memory database lives as long as the handle.
func NewTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:test_%d?mode=memory&cache=shared", testSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}
