package models

import "github.com/google/uuid"

// assignID fills a missing primary key so rows can be inserted without relying on
// database-side UUID defaults.
func assignID(id *uuid.UUID) {
	if id != nil && *id == uuid.Nil {
		*id = uuid.New()
	}
}
