package services

import (
	"time"

	"gorm.io/gorm/clause"
)

// forUpdate locks the selected rows until the surrounding transaction ends.
var forUpdate = clause.Locking{Strength: "UPDATE"}

// Clock supplies the current time; nil means the wall clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func ptr[T any](v T) *T {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
