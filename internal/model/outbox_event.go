package model

import "time"

// OutboxEvent is a status event waiting to be published. Events past the retry limit
// stay in the table for manual inspection.
type OutboxEvent struct {
	Id          uint   `gorm:"primaryKey;autoIncrement"`
	EventId     string `gorm:"uniqueIndex;size:36"`
	Publisher   string `gorm:"not null"`
	Payload     string `gorm:"not null"`
	Retry       int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time `gorm:"index"`
}
