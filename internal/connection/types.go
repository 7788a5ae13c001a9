package connection

import (
	"errors"
	"time"

	"github.com/oddsview/oddsview/internal/protocol"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// State is the client's view of its own socket, distinct from the
// server-reported upstream state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Info is the connection status surface exposed to the application.
type Info struct {
	State State

	// UpstreamConnected reports the server's own link to the odds
	// provider, taken from status messages.
	UpstreamConnected bool
	GamesTracked      int
	SportsbooksActive int

	// LastPong is the receive time of the most recent pong, nil before
	// the first one.
	LastPong *time.Time
}

// Config configures the Connection Manager.
type Config struct {
	URL                string        // /ws/odds endpoint
	ReconnectBaseDelay time.Duration // Backoff floor
	ReconnectMaxDelay  time.Duration // Backoff ceiling
	PingInterval       time.Duration // Heartbeat interval
	WriteTimeout       time.Duration // Write deadline for sends
	HandshakeTimeout   time.Duration // Dial timeout
	BufferSize         int           // Inbound message channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		PingInterval:       30 * time.Second,
		WriteTimeout:       5 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		BufferSize:         256,
	}
}

// Handlers are the dispatch targets supplied at construction. Both are
// optional; implementations must be safe for concurrent use.
type Handlers struct {
	// OnState is called after every Info change (state transition,
	// status message, pong).
	OnState func(Info)

	// OnMessage receives decoded snapshot, update, and error messages.
	// Pongs and status messages are consumed by the manager itself.
	OnMessage func(protocol.Message)
}
