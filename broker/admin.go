package broker

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/selium-io/selium/logging"
)

// Admin is the broker's operator-facing HTTP surface: liveness,
// Prometheus metrics, and a read-only topic listing. It has no bearing
// on the wire protocol.
type Admin struct {
	registry *Registry
	server   *fasthttp.Server
}

var (
	topicsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "selium_broker_topics",
		Help: "Number of topics currently registered on this broker.",
	})
	pubsubTopicsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "selium_broker_pubsub_topics",
		Help: "Number of pub/sub topics currently registered.",
	})
	reqrepTopicsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "selium_broker_reqrep_topics",
		Help: "Number of request/reply topics currently registered.",
	})
)

func init() {
	prometheus.MustRegister(topicsGauge, pubsubTopicsGauge, reqrepTopicsGauge)
}

// NewAdmin builds an Admin surface bound to registry's live topic table.
func NewAdmin(registry *Registry) *Admin {
	a := &Admin{registry: registry}
	a.server = &fasthttp.Server{Handler: a.handler}
	return a
}

// ListenAndServe blocks serving the admin surface on addr until it
// returns an error (including on Close).
func (a *Admin) ListenAndServe(addr string) error {
	logging.Infof("broker: admin surface listening on %s", addr)
	return a.server.ListenAndServe(addr)
}

// Close shuts the admin HTTP listener down.
func (a *Admin) Close() error { return a.server.Shutdown() }

func (a *Admin) handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/metrics":
		fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())(ctx)
	case "/v1/topics":
		a.serveTopics(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// topicSnapshot is the per-topic entry returned by GET /v1/topics.
type topicSnapshot struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

func (a *Admin) serveTopics(ctx *fasthttp.RequestCtx) {
	snap := a.registry.Snapshot()

	pubsub, reqrep := 0, 0
	out := make([]topicSnapshot, 0, len(snap))
	for path, kind := range snap {
		out = append(out, topicSnapshot{Path: path, Kind: kind.String()})
		if kind == KindReqRep {
			reqrep++
		} else {
			pubsub++
		}
	}
	topicsGauge.Set(float64(len(snap)))
	pubsubTopicsGauge.Set(float64(pubsub))
	reqrepTopicsGauge.Set(float64(reqrep))

	body, err := jsoniter.Marshal(out)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
