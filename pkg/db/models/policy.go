package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Policy is a saved rule program owned by a tenant. The entitlement engine
// only reads (id, owner_id, updated_at); the editor and runtime own the rest.
type Policy struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID   uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;not null"`
	Source    string          `gorm:"column:source;not null;default:''"`
	Config    json.RawMessage `gorm:"column:config;type:jsonb"`
	Enabled   bool            `gorm:"column:enabled;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
