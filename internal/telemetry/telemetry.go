// Package telemetry carries the operational side channels: Prometheus
// counters for session activity and the fire-and-forget page-visit
// notification posted outside the voice socket.
package telemetry

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Metrics counts session activity. Satisfies the session manager's
// Recorder interface.
type Metrics struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	reconnects     prometheus.Counter
	functionCalls  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_sent_total",
			Help: "Capture frames sent over the session socket",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_received_total",
			Help: "Agent audio frames received over the session socket",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_reconnect_attempts_total",
			Help: "Reconnect attempts scheduled after unexpected closes",
		}),
		functionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_function_calls_total",
			Help: "Remote-initiated function calls by name",
		}, []string{"function"}),
	}
	reg.MustRegister(m.framesSent, m.framesReceived, m.reconnects, m.functionCalls)
	return m
}

func (m *Metrics) FrameSent() { m.framesSent.Inc() }

func (m *Metrics) FrameReceived() { m.framesReceived.Inc() }

func (m *Metrics) Reconnect() { m.reconnects.Inc() }

func (m *Metrics) FunctionCall(name string) { m.functionCalls.WithLabelValues(name).Inc() }

// PageVisitor posts page-visited notifications to an out-of-band endpoint.
// Delivery failures are logged at debug and otherwise ignored.
type PageVisitor struct {
	endpoint string
	client   *fasthttp.Client
	logger   *zap.Logger
}

func NewPageVisitor(endpoint string, logger *zap.Logger) *PageVisitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageVisitor{
		endpoint: endpoint,
		client: &fasthttp.Client{
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		logger: logger,
	}
}

type pageVisit struct {
	Path      string    `json:"path"`
	VisitedAt time.Time `json:"visited_at"`
}

func (v *PageVisitor) PageVisited(path string) {
	if v.endpoint == "" {
		return
	}
	go v.post(path)
}

func (v *PageVisitor) post(path string) {
	body, err := sonic.Marshal(pageVisit{Path: path, VisitedAt: time.Now().UTC()})
	if err != nil {
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(v.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := v.client.Do(req, resp); err != nil {
		v.logger.Debug("page visit post failed", zap.Error(err))
		return
	}
	if resp.StatusCode() >= 300 {
		v.logger.Debug("page visit rejected", zap.Int("status", resp.StatusCode()))
	}
}
