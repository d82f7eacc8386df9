package port

import (
	"github.com/Wyydra/duo/internal/core/domain"
)

// Gateway delivers events to connections by id. Delivery is fire-and-forget:
// success means the event was queued, not that the remote side received it.
type Gateway interface {
	Deliver(to domain.ConnID, ev domain.Event) error
}
