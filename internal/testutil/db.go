// Package testutil 提供单元测试使用的内存数据库
package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"settlement-core/internal/model"
)

var dbSeq atomic.Int64

// NewDB 创建一个独立的内存 sqlite 数据库并完成建表
// 只开一个连接: 所有并发访问在连接池上排队, 条件更新的原子性与 Postgres 一致
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// CountEvents 统计 outbox 中指定类型的事件数
// payload 是二进制列, 逐行解码而不是用 LIKE 匹配
func CountEvents(t *testing.T, db *gorm.DB, eventType string) int {
	t.Helper()

	var msgs []model.OutboxMessage
	if err := db.Find(&msgs).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	n := 0
	for _, m := range msgs {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(m.Payload, &env); err != nil {
			t.Fatalf("decode outbox message %d: %v", m.ID, err)
		}
		if env.Type == eventType {
			n++
		}
	}
	return n
}
