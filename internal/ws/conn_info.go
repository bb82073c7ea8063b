package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo is the identity attached to ws lifecycle events.
type ConnInfo struct {
	ConnID        string
	AccountID     string
	DeviceID      string
	ClientVersion string
	IP            string
	RequestID     string
	TraceID       string
	ConnectedAt   time.Time
}

func (i ConnInfo) payload(event, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"account_id":     i.AccountID,
			"device_id":      i.DeviceID,
			"client_version": i.ClientVersion,
			"ip":             i.IP,
		},
	}
}

func newConnID() string {
	return uuid.NewString()
}
