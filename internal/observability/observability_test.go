package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recordingPublisher struct {
	keys     []string
	messages []interface{}
	err      error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, routingKey string, message interface{}, _ map[string]string) error {
	p.keys = append(p.keys, routingKey)
	p.messages = append(p.messages, message)
	return p.err
}

func TestPublishEventCountsFailures(t *testing.T) {
	defer SetPublisher(nil)

	assert.NoError(t, PublishEvent(context.Background(), "ws.connected", EventEnvelope{}, nil))

	pub := &recordingPublisher{err: assert.AnError}
	SetPublisher(pub)
	before := testutil.ToFloat64(amqpPublishErrorsTotal)

	err := PublishEvent(context.Background(), "ws.connected", EventEnvelope{EventType: "ws"}, BuildHeaders("r1", ""))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"ws.connected"}, pub.keys)
	assert.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))

	require.Len(t, pub.messages, 1)
	env, ok := pub.messages[0].(EventEnvelope)
	require.True(t, ok)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestBuildHeadersSkipsEmpty(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

func TestClientMetaFromGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
	c.Request.RemoteAddr = "10.0.0.1:5555"
	c.Request.Header.Set("X-Request-Id", "req-7")
	c.Request.Header.Set("X-Device-Id", "laptop")
	c.Request.Header.Set("X-Client-Version", "tui/1.0")

	meta := ClientMetaFromGin(c)

	assert.Equal(t, ClientMeta{RequestID: "req-7", DeviceID: "laptop", ClientVersion: "tui/1.0", IP: "10.0.0.1"}, meta)
}

func TestRequestIDFromRequestGenerates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotEmpty(t, RequestIDFromRequest(req))

	req.Header.Set("X-Request-Id", "given")
	assert.Equal(t, "given", RequestIDFromRequest(req))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetricsMiddleware())
	router.GET("/conversations/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/conversations/:id", "204")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversations/abc", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestGRPCInterceptorRecordsCode(t *testing.T) {
	interceptor := GRPCMetricsInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	counter := grpcRequestsTotal.WithLabelValues("grpc.health.v1.Health", "Check", "NotFound")
	before := testutil.ToFloat64(counter)

	_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "nope")
	})
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestSplitMethod(t *testing.T) {
	service, method := splitMethod("/grpc.health.v1.Health/Watch")
	assert.Equal(t, "grpc.health.v1.Health", service)
	assert.Equal(t, "Watch", method)

	service, method = splitMethod("garbage")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "thinkshare", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
