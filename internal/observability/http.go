package observability

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ClientMeta identifies the caller behind a request.
type ClientMeta struct {
	RequestID     string
	DeviceID      string
	ClientVersion string
	IP            string
}

// ClientMetaFromGin reads caller metadata from headers and the resolved client IP.
func ClientMetaFromGin(c *gin.Context) ClientMeta {
	return ClientMeta{
		RequestID:     RequestIDFromRequest(c.Request),
		DeviceID:      c.GetHeader("X-Device-Id"),
		ClientVersion: c.GetHeader("X-Client-Version"),
		IP:            c.ClientIP(),
	}
}

// RequestIDFromRequest returns the caller's X-Request-Id, generating one when absent.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}
