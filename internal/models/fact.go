package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FactCategory 事实类别
type FactCategory string

const (
	CategoryAcronym     FactCategory = "acronym"
	CategorySecret      FactCategory = "secret"
	CategoryGeneral     FactCategory = "general"
	CategoryPreference  FactCategory = "preference"
	CategoryEnvironment FactCategory = "environment"
	CategoryConstraint  FactCategory = "constraint"
)

// Fact 对话中抽取出的离散事实
// 不可变记录:对同一 key 的"更新"是一条时间戳更晚的新行,绝不原地修改
type Fact struct {
	ID            string       `gorm:"type:varchar(64);primaryKey" json:"id"`
	Key           string       `gorm:"type:varchar(255);not null;index:idx_fact_key" json:"key"`
	Value         string       `gorm:"type:text;not null" json:"value"`
	Category      FactCategory `gorm:"type:varchar(50);not null;default:'general'" json:"category"`
	TurnID        string       `gorm:"type:varchar(64)" json:"turn_id"`
	Timestamp     time.Time    `gorm:"not null" json:"timestamp"`
	SourceBlockID string       `gorm:"type:varchar(64);not null;index:idx_fact_block" json:"source_block_id"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与时间
func (f *Fact) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	return nil
}

// TableName 指定表名
func (Fact) TableName() string {
	return "facts"
}

// Text 返回 "key: value" 形式的事实文本,用于分类与分组提示词
func (f *Fact) Text() string {
	if f.Key == "" {
		return f.Value
	}
	return f.Key + ": " + f.Value
}
