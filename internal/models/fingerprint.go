package models

import "time"

// Fingerprint is the stored hash of the command that last produced a target.
type Fingerprint struct {
	Key         string    `json:"key"`
	CommandHash string    `json:"command_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}
