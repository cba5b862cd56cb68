package models

import (
	"time"
)

// SyncDirection identifies which side of the integration initiated a sync.
type SyncDirection string

const (
	SyncDirectionPush SyncDirection = "push" // WordPress -> Salesforce
	SyncDirectionPull SyncDirection = "pull" // Salesforce -> WordPress
)

// SyncEventStatus is the terminal status of one sync attempt.
type SyncEventStatus string

const (
	SyncEventStatusSuccess SyncEventStatus = "success"
	SyncEventStatusError   SyncEventStatus = "error"
	SyncEventStatusSkipped SyncEventStatus = "skipped"
)

// FieldmapStatus controls whether a fieldmap participates in sync dispatch.
type FieldmapStatus string

const (
	FieldmapStatusActive   FieldmapStatus = "active"
	FieldmapStatusInactive FieldmapStatus = "inactive"
)

// Fieldmap is a configured correspondence between a WordPress content
// type's fields and a Salesforce object's fields.
type Fieldmap struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	Label            string         `json:"label" gorm:"not null;uniqueIndex"`
	Name             string         `json:"name" gorm:"not null"` // slug derived from label
	WordpressObject  string         `json:"wordpress_object" gorm:"not null;index"`
	SalesforceObject string         `json:"salesforce_object" gorm:"not null;index"`
	Fields           string         `json:"fields" gorm:"type:jsonb"`        // []FieldPair
	SyncTriggers     string         `json:"sync_triggers" gorm:"type:jsonb"` // []string of trigger names
	PushAsync        bool           `json:"push_async" gorm:"default:false"`
	PushDrafts       bool           `json:"push_drafts" gorm:"default:false"`
	PullToDrafts     bool           `json:"pull_to_drafts" gorm:"default:false"`
	Status           FieldmapStatus `json:"status" gorm:"default:'active'"`
	Version          string         `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// FieldPair is one mapped field inside a Fieldmap, stored as jsonb.
type FieldPair struct {
	WordpressField  string `json:"wordpress_field"`
	SalesforceField string `json:"salesforce_field"`
	Direction       string `json:"direction"`   // sf_wp, wp_sf, sync
	IsPrematch      bool   `json:"is_prematch"` // used to match existing records
	IsKey           bool   `json:"is_key"`      // Salesforce external ID field
	IsDelete        bool   `json:"is_delete"`
}

// ObjectMap links one specific WordPress entity instance to one specific
// Salesforce record instance.
type ObjectMap struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	WordpressID     string     `json:"wordpress_id" gorm:"not null;index:idx_wordpress_object_id"`
	WordpressObject string     `json:"wordpress_object" gorm:"not null;index:idx_wordpress_object_id"`
	SalesforceID    string     `json:"salesforce_id" gorm:"not null;index"`
	FieldmapID      uint       `json:"fieldmap_id" gorm:"index"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	LastSyncAction  string     `json:"last_sync_action"` // create, update, delete
	LastSyncStatus  bool       `json:"last_sync_status"`
	LastSyncMessage string     `json:"last_sync_message" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Transient carries a failed form payload across a redirect so the admin
// form can be re-rendered with the user's prior input. The token is the
// md5 of the canonicalized payload; a nil ExpiresAt means the entry
// persists until explicitly cleared.
type Transient struct {
	Token     string     `json:"token" gorm:"primaryKey;size:32"`
	Payload   string     `json:"payload" gorm:"type:jsonb;not null"` // map[string]string
	ExpiresAt *time.Time `json:"expires_at" gorm:"index"`
	CreatedAt time.Time  `json:"created_at"`
}

// SyncEvent records the outcome of one push or pull attempt.
type SyncEvent struct {
	ID              string          `json:"id" gorm:"primaryKey"` // UUID
	Direction       SyncDirection   `json:"direction" gorm:"not null;index"`
	FieldmapID      uint            `json:"fieldmap_id" gorm:"index"`
	ObjectMapID     uint            `json:"object_map_id"`
	WordpressID     string          `json:"wordpress_id"`
	WordpressObject string          `json:"wordpress_object"`
	SalesforceID    string          `json:"salesforce_id"`
	Action          string          `json:"action"` // create, update, upsert, delete
	Status          SyncEventStatus `json:"status" gorm:"not null;index"`
	Message         string          `json:"message" gorm:"type:text"`
	DurationMs      int64           `json:"duration_ms"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
}

// Setting is one plugin-level configuration value, keyed by name.
type Setting struct {
	Key         string    `json:"key" gorm:"primaryKey;column:config_key"`
	Value       string    `json:"value" gorm:"column:config_value;type:text"`
	Description string    `json:"description" gorm:"type:text"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
