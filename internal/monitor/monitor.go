// Package monitor exposes a small gin HTTP surface over the running
// core: a liveness probe, a JSON snapshot of dispatch/ARP/PTP
// counters, and a Prometheus /metrics endpoint. It never touches the
// poll loop directly — Stats is polled on each request from whatever
// the caller wired in, keeping the core itself free of an HTTP
// dependency.
package monitor

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Stats is a point-in-time snapshot of the counters worth exporting.
// Callers build one fresh per request from whatever dispatch/cache/
// client objects they own; Server holds no reference to them.
type Stats struct {
	EthDispatched  uint64
	EthDropped     uint64
	IPv4Dropped    uint64
	UDPDropped     uint64
	UDPBadCsum     uint64
	ARPCacheSize   int
	PTPState       string
	PTPMeasurements uint64
}

// ObserveConfigBusLatency records one ConfigBus transaction's
// round-trip time against the latency histogram. Callers time their
// own Register.Get/Set calls and report the result; the Server never
// calls into ConfigBus itself.
func (s *Server) ObserveConfigBusLatency(d time.Duration) {
	s.configBusLatency.Observe(d.Seconds())
}

// StatsFunc produces a fresh Stats snapshot on demand.
type StatsFunc func() Stats

// Server is the diagnostics HTTP surface.
type Server struct {
	engine *gin.Engine
	stats  StatsFunc

	ethDispatched    prometheus.Counter
	ethDropped       prometheus.Gauge
	ipv4Dropped      prometheus.Gauge
	udpDropped       prometheus.Gauge
	udpBadCsum       prometheus.Gauge
	arpCacheSize     prometheus.Gauge
	ptpMeasurements  prometheus.Counter
	configBusLatency prometheus.Histogram

	lastEthDispatched   uint64
	lastPTPMeasurements uint64
}

// New builds a Server. corsOrigins may be empty to disable CORS.
func New(stats StatsFunc, corsOrigins []string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(corsOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = corsOrigins
		engine.Use(cors.New(cfg))
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		engine: engine,
		stats:  stats,
		ethDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satcat5_eth_dispatched_total", Help: "Ethernet frames routed to a matching EtherType handler.",
		}),
		ethDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "satcat5_eth_dropped_total", Help: "Ethernet frames dropped for lack of a matching handler.",
		}),
		ipv4Dropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "satcat5_ipv4_dropped_total", Help: "IPv4 datagrams dropped for lack of a matching protocol handler.",
		}),
		udpDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "satcat5_udp_dropped_total", Help: "UDP datagrams dropped for lack of a matching socket.",
		}),
		udpBadCsum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "satcat5_udp_bad_checksum_total", Help: "UDP datagrams discarded for a bad checksum.",
		}),
		arpCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "satcat5_arp_cache_size", Help: "Entries currently held in the ARP cache.",
		}),
		ptpMeasurements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satcat5_ptp_measurements_total", Help: "PTP Sync/Delay-Resp exchanges completed.",
		}),
		configBusLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "satcat5_configbus_transaction_seconds",
			Help:    "ConfigBus transaction round-trip time.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	registry.MustRegister(s.ethDispatched, s.ethDropped, s.ipv4Dropped, s.udpDropped,
		s.udpBadCsum, s.arpCacheSize, s.ptpMeasurements, s.configBusLatency)

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/stats", s.handleStats)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return s
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.stats()
	if st.EthDispatched > s.lastEthDispatched {
		s.ethDispatched.Add(float64(st.EthDispatched - s.lastEthDispatched))
	}
	s.lastEthDispatched = st.EthDispatched
	s.ethDropped.Set(float64(st.EthDropped))
	s.ipv4Dropped.Set(float64(st.IPv4Dropped))
	s.udpDropped.Set(float64(st.UDPDropped))
	s.udpBadCsum.Set(float64(st.UDPBadCsum))
	s.arpCacheSize.Set(float64(st.ARPCacheSize))
	if st.PTPMeasurements > s.lastPTPMeasurements {
		s.ptpMeasurements.Add(float64(st.PTPMeasurements - s.lastPTPMeasurements))
	}
	s.lastPTPMeasurements = st.PTPMeasurements
	c.JSON(200, gin.H{
		"eth_dispatched":   st.EthDispatched,
		"eth_dropped":      st.EthDropped,
		"ipv4_dropped":     st.IPv4Dropped,
		"udp_dropped":      st.UDPDropped,
		"udp_bad_csum":     st.UDPBadCsum,
		"arp_cache_size":   st.ARPCacheSize,
		"ptp_state":        st.PTPState,
		"ptp_measurements": st.PTPMeasurements,
	})
}

// Run starts the HTTP listener on addr, blocking until it exits.
func (s *Server) Run(addr string) error {
	log.Info().Str("addr", addr).Msg("monitor listening")
	return s.engine.Run(addr)
}

// Handler returns the underlying http.Handler for embedding in a
// caller-managed server instead of calling Run.
func (s *Server) Handler() *gin.Engine { return s.engine }
