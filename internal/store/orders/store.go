// Package orders 用 GORM + SQLite 落盘执行层的订单记录。
package orders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// OrderRecord 是一条已提交（或提交失败）的订单。
type OrderRecord struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	ClientOrderID string         `gorm:"size:64;uniqueIndex"`
	BrokerOrderID string         `gorm:"size:64;index"`
	Symbol        string         `gorm:"size:32;index:idx_orders_symbol_created"`
	Side          string         `gorm:"size:8"`
	Quantity      int            `gorm:""`
	Price         float64        `gorm:""`
	OrderType     string         `gorm:"size:16"`
	Env           string         `gorm:"size:16"`
	Status        string         `gorm:"size:16;index"` // submitted | failed
	Confidence    float64        `gorm:""`
	FusionType    string         `gorm:"size:32"`
	Error         string         `gorm:""`
	Detail        datatypes.JSON `gorm:""`
	CreatedAt     time.Time      `gorm:"index:idx_orders_symbol_created"`
	UpdatedAt     time.Time      `gorm:""`
}

func (OrderRecord) TableName() string { return "orders" }

// Store 封装订单表。
type Store struct {
	db *gorm.DB
}

// New 打开（必要时创建）订单库。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("order store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Save 插入一条订单记录。
func (s *Store) Save(rec *OrderRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("order store 未初始化")
	}
	return s.db.Create(rec).Error
}

// ListRecent 按时间倒序返回某符号的订单，symbol 为空时不过滤。
func (s *Store) ListRecent(symbol string, limit int) ([]OrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("order store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.Order("created_at DESC, id DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var out []OrderRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
