package utils

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewID returns a best-effort unique identifier for correlating log lines
// and connections.
func NewID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		// Fallback to timestamp if entropy is unavailable.
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}
