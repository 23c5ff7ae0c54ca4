// Package metrics exposes h3mux context events as prometheus metrics.
package metrics

import (
	"errors"
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/h3mux/h3mux"
)

const metricNamespace = "h3mux"

func getIPVersion(addr netip.AddrPort) string {
	if addr.Addr().Is4() || addr.Addr().Is4In6() {
		return "ipv4"
	}
	return "ipv6"
}

var (
	datagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "datagrams_received_total",
			Help:      "UDP datagrams read from the socket",
		},
		[]string{"ip_version"},
	)
	datagramsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "datagrams_sent_total",
			Help:      "UDP datagrams written to the socket",
		},
		[]string{"ip_version"},
	)
	sendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "send_errors_total",
			Help:      "sendmsg failures (datagram dropped, connection kept)",
		},
		[]string{"ip_version"},
	)
	packetsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "packets_dropped_total",
			Help:      "QUIC packets dropped before reaching a connection",
		},
		[]string{"ip_version", "reason"},
	)
	connsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "connections_accepted_total",
			Help:      "server-side connections created by the acceptor",
		},
	)
	connsDestroyed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "connections_destroyed_total",
			Help:      "connections disposed",
		},
	)
)

// NewTracer creates a context tracer using the default prometheus
// registerer.
func NewTracer() *h3mux.Tracer {
	return NewTracerWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTracerWithRegisterer creates a context tracer using the given
// prometheus registerer.
func NewTracerWithRegisterer(registerer prometheus.Registerer) *h3mux.Tracer {
	for _, c := range [...]prometheus.Collector{
		datagramsReceived,
		datagramsSent,
		sendErrors,
		packetsDropped,
		connsAccepted,
		connsDestroyed,
	} {
		if err := registerer.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}

	return &h3mux.Tracer{
		ReceivedDatagram: func(remote netip.AddrPort, size int) {
			datagramsReceived.WithLabelValues(getIPVersion(remote)).Inc()
		},
		SentDatagram: func(remote netip.AddrPort, size int) {
			datagramsSent.WithLabelValues(getIPVersion(remote)).Inc()
		},
		SendError: func(remote netip.AddrPort, err error) {
			sendErrors.WithLabelValues(getIPVersion(remote)).Inc()
		},
		DroppedPackets: func(remote netip.AddrPort, count int, reason h3mux.PacketDropReason) {
			packetsDropped.WithLabelValues(getIPVersion(remote), reason.String()).Add(float64(count))
		},
		AcceptedConnection: func(netip.AddrPort) {
			connsAccepted.Inc()
		},
		DestroyedConnection: func() {
			connsDestroyed.Inc()
		},
	}
}
