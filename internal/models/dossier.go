package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dossier 持续累积的叙事档案
// summary 是唯一可变字段,每次追加事实后由 LLM 整体重写(而非拼接)
type Dossier struct {
	DossierID    string    `gorm:"type:varchar(64);primaryKey" json:"dossier_id"`
	Title        string    `gorm:"type:varchar(500);not null" json:"title"`
	Summary      string    `gorm:"type:text" json:"summary"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	LastModified time.Time `gorm:"not null" json:"last_modified"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与时间
func (d *Dossier) BeforeCreate(tx *gorm.DB) error {
	if d.DossierID == "" {
		d.DossierID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.LastModified.IsZero() {
		d.LastModified = d.CreatedAt
	}
	return nil
}

// TableName 指定表名
func (Dossier) TableName() string {
	return "dossiers"
}

// DossierFact 档案内的单条事实,只追加不修改
// 每条事实在向量索引中有一条以 (fact_id, dossier_id) 为键的对应嵌入
type DossierFact struct {
	FactID        string    `gorm:"type:varchar(64);primaryKey" json:"fact_id"`
	DossierID     string    `gorm:"type:varchar(64);not null;index:idx_dfact_dossier" json:"dossier_id"`
	FactText      string    `gorm:"type:text;not null" json:"fact_text"`
	SourceBlockID string    `gorm:"type:varchar(64)" json:"source_block_id"`
	SourceTurnID  *string   `gorm:"type:varchar(64)" json:"source_turn_id,omitempty"`
	Confidence    float64   `gorm:"not null;default:1.0" json:"confidence"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与时间
func (f *DossierFact) BeforeCreate(tx *gorm.DB) error {
	if f.FactID == "" {
		f.FactID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	return nil
}

// TableName 指定表名
func (DossierFact) TableName() string {
	return "dossier_facts"
}

// ProvenanceOperation 档案变更操作类型
type ProvenanceOperation string

const (
	ProvenanceCreated        ProvenanceOperation = "created"
	ProvenanceFactAdded      ProvenanceOperation = "fact_added"
	ProvenanceSummaryUpdated ProvenanceOperation = "summary_updated"
)

// ProvenanceEntry 档案变更审计记录,每次写操作追加一条
type ProvenanceEntry struct {
	ProvenanceID  string              `gorm:"type:varchar(64);primaryKey" json:"provenance_id"`
	DossierID     string              `gorm:"type:varchar(64);not null;index:idx_prov_dossier" json:"dossier_id"`
	Operation     ProvenanceOperation `gorm:"type:varchar(50);not null" json:"operation"`
	SourceBlockID string              `gorm:"type:varchar(64)" json:"source_block_id"`
	Details       datatypes.JSON      `gorm:"type:jsonb" json:"details"`
	Timestamp     time.Time           `gorm:"not null" json:"timestamp"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与时间
func (p *ProvenanceEntry) BeforeCreate(tx *gorm.DB) error {
	if p.ProvenanceID == "" {
		p.ProvenanceID = uuid.New().String()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	return nil
}

// TableName 指定表名
func (ProvenanceEntry) TableName() string {
	return "provenance_entries"
}
