package sqlgen

import (
	"fmt"
	"strings"
)

// ValidationError is returned when an entity is not transformable.
// Reasons lists every violation found, in discovery order.
type ValidationError struct {
	Entity  string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entity %s is not transformable: %s", e.Entity, strings.Join(e.Reasons, "; "))
}
