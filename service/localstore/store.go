/*
 * @module service/localstore/store
 * @description 本地库查询层，按实体类型提供记录数统计和抽样查询
 * @architecture 分层架构 - 数据访问层
 * @documentReference ai_docs/validation_engine_req.md
 * @stateFlow 实体类型 -> 表名映射 -> COUNT/抽样查询 -> 通用映射记录
 * @rules 返回普通 map 记录，不耦合业务表结构；仅传播连接类错误
 * @dependencies gorm.io/gorm
 * @refs service/validation/
 */

package localstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// 实体类型到本地表名的映射
var entityTables = map[string]string{
	"volunteer":    "volunteers",
	"organization": "organizations",
	"event":        "events",
	"student":      "students",
	"teacher":      "teachers",
}

// Store 本地库查询层
type Store struct {
	db *gorm.DB
}

// NewStore 创建本地库查询层实例
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// TableFor 返回实体类型对应的本地表名
func TableFor(entityType string) (string, error) {
	table, exists := entityTables[entityType]
	if !exists {
		return "", fmt.Errorf("未知的实体类型: %s", entityType)
	}
	return table, nil
}

// EntityTypes 返回所有支持的实体类型
func EntityTypes() []string {
	types := make([]string, 0, len(entityTables))
	for entityType := range entityTables {
		types = append(types, entityType)
	}
	return types
}

// Count 统计实体类型的本地记录数
func (s *Store) Count(ctx context.Context, entityType string) (int64, error) {
	table, err := TableFor(entityType)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Table(table).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计本地表 %s 记录数失败: %w", table, err)
	}
	return count, nil
}

// Sample 抽样查询实体类型的本地记录，返回通用映射
func (s *Store) Sample(ctx context.Context, entityType string, limit int) ([]map[string]interface{}, error) {
	table, err := TableFor(entityType)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.WithContext(ctx).Table(table).Limit(limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("抽样查询本地表 %s 失败: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("获取本地表 %s 列信息失败: %w", table, err)
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			continue
		}

		record := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			if bytes, ok := values[i].([]byte); ok {
				record[column] = string(bytes)
			} else {
				record[column] = values[i]
			}
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
