package models

import (
	"encoding/json"
	"time"

	"hmlr/pkg/types"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BlockState 桥接块状态
type BlockState string

const (
	BlockStateActive BlockState = "active" // 话题仍在进行
	BlockStatePaused BlockState = "paused" // 话题已关闭,等待园丁处理
)

// BridgeBlock 一段已闭合话题的对话片段
// 园丁处理完成后整行删除,只保留由它派生的事实、标签与档案
type BridgeBlock struct {
	BlockID    string     `gorm:"type:varchar(64);primaryKey" json:"block_id"`
	Topic      string     `gorm:"type:varchar(500)" json:"topic"`
	Transcript string     `gorm:"type:text" json:"transcript"` // 原始对话文本(大字段)
	State      BlockState `gorm:"type:varchar(20);not null;default:'active'" json:"state"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与时间
func (b *BridgeBlock) BeforeCreate(tx *gorm.DB) error {
	if b.BlockID == "" {
		b.BlockID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return nil
}

// TableName 指定表名
func (BridgeBlock) TableName() string {
	return "bridge_blocks"
}

// SectionRule 作用于一段轮次区间的约束/别名规则
type SectionRule struct {
	StartTurn string `json:"start_turn"`
	EndTurn   string `json:"end_turn"`
	RuleText  string `json:"rule_text"`
}

// Covers 判断某个轮次是否落在规则区间内
// 轮次 ID 按字符串比较,要求上游使用零填充的可排序编号
func (r SectionRule) Covers(turnID string) bool {
	if turnID == "" {
		return false
	}
	return r.StartTurn <= turnID && turnID <= r.EndTurn
}

// BlockMetadata 块级粘性标签,与桥接块一一对应
// 每块只存一份(指针模型,chunk 只引用 block_id),块正文删除后仍然保留
type BlockMetadata struct {
	BlockID      string            `gorm:"type:varchar(64);primaryKey" json:"block_id"`
	GlobalTags   types.StringArray `gorm:"type:text" json:"global_tags"`
	SectionRules datatypes.JSON    `gorm:"type:jsonb" json:"section_rules"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
}

// BeforeCreate GORM 钩子：创建前设置时间
func (m *BlockMetadata) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return nil
}

// TableName 指定表名
func (BlockMetadata) TableName() string {
	return "block_metadata"
}

// DecodeSectionRules 解析 jsonb 列中的分段规则,列为空时返回空切片
func (m *BlockMetadata) DecodeSectionRules() ([]SectionRule, error) {
	if len(m.SectionRules) == 0 {
		return nil, nil
	}
	var rules []SectionRule
	if err := json.Unmarshal(m.SectionRules, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// EncodeSectionRules 将分段规则编码进 jsonb 列
func (m *BlockMetadata) EncodeSectionRules(rules []SectionRule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	m.SectionRules = datatypes.JSON(data)
	return nil
}

// ConversationChunk 读路径使用的检索单元,引用而非复制块级标签
type ConversationChunk struct {
	ChunkID   string    `gorm:"type:varchar(64);primaryKey" json:"chunk_id"`
	BlockID   string    `gorm:"type:varchar(64);index:idx_chunk_block" json:"block_id"`
	TurnID    string    `gorm:"type:varchar(64)" json:"turn_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与时间
func (c *ConversationChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ChunkID == "" {
		c.ChunkID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return nil
}

// TableName 指定表名
func (ConversationChunk) TableName() string {
	return "conversation_chunks"
}
