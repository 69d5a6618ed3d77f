package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Abort reasons recorded by phantomband_relay_aborts_total.
const (
	abortTransport     = "transport"
	abortCrypto        = "crypto"
	abortSerialization = "serialization"
	abortProtocol      = "protocol"
)

var (
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "phantomband_relay_connections_total",
			Help: "Number of accepted connections",
		},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "phantomband_relay_active_connections",
			Help: "Number of connections currently being served",
		},
	)
	registeredClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "phantomband_relay_registered_clients",
			Help: "Number of clients in the session registry",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phantomband_relay_frames_total",
			Help: "Number of decoded frames by message kind",
		},
		[]string{"kind"},
	)
	abortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phantomband_relay_aborts_total",
			Help: "Number of connections aborted by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(connectionsTotal)
	prometheus.MustRegister(activeConnections)
	prometheus.MustRegister(registeredClients)
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(abortsTotal)
}

// ServeMetrics exposes the default Prometheus registry on address until ctx
// is cancelled.
func ServeMetrics(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return serveMetrics(ctx, ln)
}

func serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logrus.WithFields(logrus.Fields{
		"function": "ServeMetrics",
		"address":  ln.Addr().String(),
	}).Info("Serving metrics")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
