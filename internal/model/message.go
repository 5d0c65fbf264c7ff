// Package model defines data structure.
package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a single chat line, used for broker payloads, storage and
// push-channel frames alike. It is immutable once the message store assigns
// its ID.
type ChatMessage struct {
	ID             int64     `json:"id"`
	AuthorID       uuid.UUID `json:"author_id"`
	AuthorUsername string    `json:"author"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`

	// Origin names the process that accepted the message. IDs are only
	// unique per store, so receivers dedupe on Origin and ID together. It is
	// set on the bus and never stored.
	Origin string `json:"origin,omitempty"`
}

// DeliveryKey identifies one published message across every instance
// sharing a bus.
func (m ChatMessage) DeliveryKey() string {
	return m.Origin + ":" + strconv.FormatInt(m.ID, 10)
}
