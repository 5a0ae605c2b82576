package board

import (
	"strings"

	"github.com/cedadev/ceda-status-bot/internal/domain"
	"github.com/google/uuid"
)

// NewServiceID derives a stable id for a new service from its display
// name. The slugified name is used directly when free; on collision a
// uuid fragment is appended until the id is unique within the dataset.
func NewServiceID(name string, ds *domain.Dataset) string {
	base := slugify(name)
	if base == "" {
		base = "service"
	}

	id := base
	for ds.FindService(id) >= 0 {
		id = base + "-" + uuid.NewString()[:8]
	}
	return id
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
