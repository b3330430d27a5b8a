package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFoundError reports whether err indicates a missing record.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
