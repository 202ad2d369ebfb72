package axon

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSubagentContextID generates a delegated-session context id of the form
// "subagent-<8hex>". The id doubles as the subagent's checkpoint thread id
// and as the prefix on ask-human questions it forwards to the user.
func NewSubagentContextID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return subagentPrefix + raw[:8]
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
