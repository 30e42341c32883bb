package domain

import "time"

// Setting is a single persisted override of a registered configuration
// key. Keys absent from this table fall back to the config defaults.
type Setting struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:128;uniqueIndex" json:"key"`
	Value     string    `gorm:"size:1024" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Setting) TableName() string { return "settings" }
