package port

import "github.com/Wyydra/duo/internal/core/domain"

// Client is the transport end of one live connection.
type Client interface {
	// Send queues ev for writing. It never blocks; a full queue is an error.
	Send(ev domain.Event) error
	Close() error
}
