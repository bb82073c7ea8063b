package observability

import (
	"context"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Server side.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkshare_http_requests_total",
		Help: "HTTP requests served by the messaging API.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thinkshare_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route"})

	grpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkshare_grpc_requests_total",
		Help: "Unary gRPC calls by service, method and status code.",
	}, []string{"service", "method", "code"})

	pushConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thinkshare_ws_active_connections",
		Help: "Open push channel connections.",
	})

	pushFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkshare_ws_events_total",
		Help: "Push channel frames by direction and type.",
	}, []string{"direction", "event"})

	amqpPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thinkshare_amqp_publish_errors_total",
		Help: "Failed AMQP publishes.",
	})
)

// Client side, exported by the synchronizer.
var (
	syncSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkshare_sync_sends_total",
		Help: "Messages dispatched by the conversation synchronizer.",
	}, []string{"result"})

	syncFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkshare_sync_fetches_total",
		Help: "History fetches by outcome.",
	}, []string{"result"})

	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thinkshare_sync_send_queue_depth",
		Help: "Sends waiting for dispatch.",
	})
)

// HTTPMetricsMiddleware counts requests by route template so ids don't explode cardinality.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		service, method := splitMethod(info.FullMethod)
		grpcRequestsTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// splitMethod turns "/pkg.Service/Method" into its two halves.
func splitMethod(full string) (string, string) {
	service, method := path.Split(full)
	service = strings.Trim(service, "/")
	if service == "" || method == "" {
		return "unknown", "unknown"
	}
	return service, method
}

func IncWSActive() { pushConnections.Inc() }

func DecWSActive() { pushConnections.Dec() }

// IncWSEvent counts a frame; direction is "in", "out" or "lifecycle".
func IncWSEvent(direction, event string) {
	pushFrames.WithLabelValues(direction, event).Inc()
}

func IncAMQPPublishError() { amqpPublishErrorsTotal.Inc() }

// ObserveSend records a synchronizer dispatch result ("ok" or "failed").
func ObserveSend(result string) {
	syncSends.WithLabelValues(result).Inc()
}

// ObserveFetch records a fetch outcome: ok, failed, canceled or discarded.
func ObserveFetch(result string) {
	syncFetches.WithLabelValues(result).Inc()
}

func SetSendQueueDepth(n int) {
	syncQueueDepth.Set(float64(n))
}
