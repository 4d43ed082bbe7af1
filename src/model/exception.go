package model

import "time"

// Exception is a persisted engine failure. The dashboard reads these rows to
// tell a user why a trigger disappeared without trading.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "trigger_engine"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "executors"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "ExecuteSpotBuy"

	// Error information
	Message string `gorm:"type:text" json:"message"`

	// Severity level
	Level string `gorm:"size:20;index" json:"level"` // warn | error

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
