package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the node's Prometheus collectors: chain height, pool
// sizes and peer counts are sampled on every /metrics scrape rather than
// pushed, since each value is already cheap to read under its owner's
// lock.
type Metrics struct {
	registry *prometheus.Registry

	chain *Chain
	peers *PeerPool
}

// NewMetrics registers the node's gauges against a fresh registry.
func NewMetrics(chain *Chain, peers *PeerPool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chain:    chain,
		peers:    peers,
	}

	heightGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corechain_block_height",
		Help: "Current chain tip height.",
	}, func() float64 {
		h, _ := m.chain.Height()
		return float64(h)
	})
	poolGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corechain_mempool_pending",
		Help: "Pending payment transactions not yet in any block.",
	}, func() float64 {
		return float64(len(m.chain.Mempool().Pool()))
	})
	unconfirmedGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corechain_mempool_unconfirmed",
		Help: "Transactions confirmed but not yet buried under 5 blocks.",
	}, func() float64 {
		return float64(len(m.chain.Mempool().UnconfirmedPool()))
	})
	activePeersGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "corechain_active_peers",
		Help: "Active (reachable, admitted) peer count.",
	}, func() float64 {
		return float64(len(m.peers.Active()))
	})

	m.registry.MustRegister(heightGauge, poolGauge, unconfirmedGauge, activePeersGauge)
	return m
}

// Handler returns the http.Handler serving this node's /metrics scrape.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
