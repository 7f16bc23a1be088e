package domain

import "time"

type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ActorID    *uint     `json:"actor_id,omitempty" gorm:"index"`
	ActorEmail string    `json:"actor_email,omitempty" gorm:"size:255"`
	Action     string    `json:"action" gorm:"size:64;index"`
	EntityType string    `json:"entity_type" gorm:"size:32;index"`
	EntityID   string    `json:"entity_id,omitempty" gorm:"size:64"`
	Detail     JSONMap   `json:"detail,omitempty" gorm:"type:jsonb"`
	ClientIP   string    `json:"client_ip,omitempty" gorm:"size:45"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}
