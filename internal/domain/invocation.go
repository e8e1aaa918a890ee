// File: internal/domain/invocation.go
package domain

import (
	"errors"
	"time"
)

// Invocation is the audit record of one tool call and its terminal outcome.
type Invocation struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	RequestID      string    `gorm:"size:26;uniqueIndex;not null" json:"request_id"`
	Tool           string    `gorm:"size:32;index;not null" json:"tool"`
	State          string    `gorm:"size:32;index;not null" json:"state"`
	Reason         string    `gorm:"size:32" json:"reason,omitempty"`
	Attempts       int       `json:"attempts"`
	ElapsedMS      int64     `json:"elapsed_ms"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	MaxRetries     int       `json:"max_retries"`
	Model          string    `gorm:"size:32" json:"model,omitempty"`
	ImageCount     int       `json:"image_count,omitempty"`
	ErrorMessage   string    `gorm:"type:text" json:"error,omitempty"`
	Hint           string    `gorm:"type:text" json:"hint,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (i *Invocation) IsValid() error {
	if i.RequestID == "" {
		return errors.New("request id is required")
	}
	if i.Tool == "" {
		return errors.New("tool is required")
	}
	if i.State == "" {
		return errors.New("state is required")
	}
	if i.Attempts < 0 {
		return errors.New("attempts cannot be negative")
	}
	return nil
}
