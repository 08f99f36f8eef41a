package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewReference returns a unique ledger reference such as "TIP-3F2A9C1B7D4E".
func NewReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return strings.ToUpper(prefix) + "-" + id[:12]
}
