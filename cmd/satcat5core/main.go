// Command satcat5core boots one instance of the software core: the
// Ethernet/ARP/IPv4/ICMP/UDP dispatch chain, a PTP client, the
// ConfigBus register interface, and the diagnostics HTTP surface. It
// captures every transmitted frame to a PCAPNG file so a session can
// be inspected offline with any standard capture viewer.
package main

import (
	"flag"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/satcat5/corenet/internal/config"
	"github.com/satcat5/corenet/internal/configbus"
	"github.com/satcat5/corenet/internal/logging"
	"github.com/satcat5/corenet/internal/monitor"
	"github.com/satcat5/corenet/internal/netstack/arp"
	"github.com/satcat5/corenet/internal/netstack/eth"
	"github.com/satcat5/corenet/internal/netstack/icmp"
	"github.com/satcat5/corenet/internal/netstack/ipv4"
	"github.com/satcat5/corenet/internal/netstack/route"
	"github.com/satcat5/corenet/internal/netstack/udp"
	"github.com/satcat5/corenet/internal/pcap"
	"github.com/satcat5/corenet/internal/poll"
	"github.com/satcat5/corenet/internal/ptime"
	"github.com/satcat5/corenet/internal/ptp/client"
	"github.com/satcat5/corenet/internal/ptp/transport"
	"github.com/satcat5/corenet/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional; defaults are used if omitted)")
	capturePath := flag.String("capture", "satcat5.pcapng", "PCAPNG file every transmitted frame is written to")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("config load failed")
		}
		cfg = loaded
	} else {
		cfg.Node = config.NodeConfig{Name: "satcat5-core", MAC: "02:00:00:00:00:01", IP: "10.0.0.1"}
		cfg.ConfigBus = config.ConfigBusConfig{Backend: "mmap", TimeoutMs: 250}
		cfg.PTP = config.PTPConfig{Enabled: true, Role: "auto", PeerIP: "10.0.0.2"}
		cfg.Monitor = config.MonitorConfig{Addr: ":9000"}
	}

	mac, err := net.ParseMAC(cfg.Node.MAC)
	if err != nil || len(mac) != 6 {
		log.Fatal().Str("mac", cfg.Node.MAC).Msg("invalid node MAC")
	}
	var localMAC eth.Addr
	copy(localMAC[:], mac)
	localIP := net.ParseIP(cfg.Node.IP).To4()
	if localIP == nil {
		log.Fatal().Str("ip", cfg.Node.IP).Msg("invalid node IP")
	}

	captureFile, err := os.Create(*capturePath)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create capture file")
	}
	defer captureFile.Close()
	capWriter, ok := pcap.NewWriter(newPCAPSink(&fileSink{f: captureFile}), pcap.LinkTypeEthernet)
	if !ok {
		log.Fatal().Msg("failed to write PCAPNG header")
	}

	clock := poll.NewSystemClock()
	scheduler := poll.NewScheduler(clock)

	ethDispatch := eth.New(localMAC, func() (stream.Writeable, bool) {
		return newCaptureSink(capWriter), true
	})

	arpProto := arp.New(ethDispatch, arp.IPv4{localIP[0], localIP[1], localIP[2], localIP[3]}, 64)
	scheduler.RegisterTimer(arpProto, 250)

	routes := route.New(16)
	ipDispatch := ipv4.New(localIP, ethDispatch, arpProto, routes, false)
	icmp.New(ipDispatch)
	udpDispatch := udp.New(ipDispatch)

	var bus configbus.Bus
	switch cfg.ConfigBus.Backend {
	case "remote":
		log.Warn().Msg("configbus backend=remote needs a caller-supplied Transport; falling back to mmap for this demo")
		fallthrough
	default:
		bus = configbus.NewMmap(1024 * 256)
	}
	versionReg := configbus.Register{Bus: bus, Addr: configbus.Addr(0, 0)}
	versionReg.Set(1)
	if v, st := versionReg.Get(); st == configbus.StatusOK {
		log.Debug().Uint32("version_register", v).Msg("configbus self-test")
	}

	ptpState := client.Disabled
	var ptpClient *client.Client
	var ptpMeasurements uint64
	if cfg.PTP.Enabled {
		peerIP := net.ParseIP(cfg.PTP.PeerIP)
		if peerIP == nil {
			log.Fatal().Str("peer_ip", cfg.PTP.PeerIP).Msg("invalid ptp peer_ip")
		}
		ptpClient = client.New(eui64FromMAC(localMAC), 8, func(m client.Measurement) {
			atomic.AddUint64(&ptpMeasurements, 1)
			log.Debug().Uint16("seq", m.SequenceID).
				Int64("delay_ns", m.MeanPathDelay().DeltaNanoseconds()).
				Int64("offset_ns", m.OffsetFromMaster().DeltaNanoseconds()).
				Msg("ptp measurement")
		})
		switch cfg.PTP.Role {
		case "master":
			ptpClient.SetState(client.Master)
		case "slave":
			ptpClient.SetState(client.Slave)
		default:
			ptpClient.SetState(client.Listening)
		}
		ptpTransport := transport.New(udpDispatch, ptpClient, peerIP)
		scheduler.RegisterAlways(ptpTransport)
		scheduler.RegisterTimer(&delayReqTask{
			transport: ptpTransport,
			identity:  eui64FromMAC(localMAC),
		}, 1000)
		ptpState = ptpClient.State()
	}

	mon := monitor.New(func() monitor.Stats {
		state := ptpState
		if ptpClient != nil {
			state = ptpClient.State()
		}
		return monitor.Stats{
			EthDispatched:   ethDispatch.Matched(),
			EthDropped:      ethDispatch.Dropped(),
			IPv4Dropped:     ipDispatch.Dropped(),
			UDPDropped:      udpDispatch.Dropped(),
			UDPBadCsum:      udpDispatch.BadChecksum(),
			ARPCacheSize:    arpProto.CacheLen(),
			PTPState:        state.String(),
			PTPMeasurements: atomic.LoadUint64(&ptpMeasurements),
		}
	}, cfg.Monitor.CorsOrigins)

	scheduler.RegisterTimer(&configBusProbe{reg: versionReg, mon: mon}, 1000)

	go func() {
		if err := mon.Run(cfg.Monitor.Addr); err != nil {
			log.Error().Err(err).Msg("monitor server exited")
		}
	}()

	_ = udpDispatch
	log.Info().Str("node", cfg.Node.Name).Str("mac", localMAC.String()).Str("ip", localIP.String()).
		Str("capture", *capturePath).Msg("core started")

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		scheduler.Service()
	}
}

// configBusProbe times a ConfigBus read once per registered period and
// reports it to the monitor's latency histogram, giving the /metrics
// endpoint a live signal even on an otherwise idle bus.
type configBusProbe struct {
	reg configbus.Register
	mon *monitor.Server
}

func (p *configBusProbe) Poll() {
	start := time.Now()
	p.reg.Get()
	p.mon.ObserveConfigBusLatency(time.Since(start))
}

// eui64FromMAC expands a 6-byte MAC into an 8-byte EUI-64-style clock
// identity by inserting the standard 0xFFFE middle octets.
func eui64FromMAC(mac eth.Addr) client.ClockIdentity {
	var id client.ClockIdentity
	copy(id[0:3], mac[0:3])
	id[3], id[4] = 0xFF, 0xFE
	copy(id[5:8], mac[3:6])
	return id
}

// delayReqTask fires a PTP Delay-Req once per registered timer period,
// stamped with the wall-clock time it was sent.
type delayReqTask struct {
	transport *transport.UDPTransport
	identity  client.ClockIdentity
}

func (d *delayReqTask) Poll() {
	d.transport.SendDelayReq(d.identity, ptime.New(time.Now().Unix(), 0))
}

// fileSink writes each finished record to an *os.File, reporting
// success as a bool for the captureWriteable wrapper below.
type fileSink struct{ f *os.File }

func (fs *fileSink) write(b []byte) bool { _, err := fs.f.Write(b); return err == nil }

// captureWriteable is a stream.Writeable that accumulates one record
// and hands it to fileSink on Finalize. It is the Writeable the
// PCAPNG codec itself writes its blocks through.
type captureWriteable struct {
	sink *fileSink
	buf  []byte
	ok   bool
}

func newPCAPSink(sink *fileSink) *captureWriteable { return &captureWriteable{sink: sink, ok: true} }

func (c *captureWriteable) Ok() bool { return c.ok }
func (c *captureWriteable) put(b []byte) bool {
	if !c.ok {
		return false
	}
	c.buf = append(c.buf, b...)
	return true
}
func (c *captureWriteable) PutU8(v uint8) bool  { return c.put([]byte{v}) }
func (c *captureWriteable) PutU16BE(v uint16) bool {
	return c.put([]byte{byte(v >> 8), byte(v)})
}
func (c *captureWriteable) PutU16LE(v uint16) bool {
	return c.put([]byte{byte(v), byte(v >> 8)})
}
func (c *captureWriteable) PutU32BE(v uint32) bool {
	return c.put([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
func (c *captureWriteable) PutU32LE(v uint32) bool {
	return c.put([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
func (c *captureWriteable) PutU64BE(v uint64) bool {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
	return c.put(b)
}
func (c *captureWriteable) PutU64LE(v uint64) bool {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(8*i))
	}
	return c.put(b)
}
func (c *captureWriteable) PutBytes(b []byte) bool { return c.put(b) }
func (c *captureWriteable) Finalize() bool {
	if !c.ok {
		c.buf = nil
		return false
	}
	ok := c.sink.write(c.buf)
	c.buf = nil
	return ok
}
func (c *captureWriteable) Abort() { c.buf = nil }

var _ stream.Writeable = (*captureWriteable)(nil)

// captureSink is the Writeable handed to the Ethernet layer's
// TxOpener: it buffers exactly one outbound frame, then on Finalize
// hands it to the capture writer as one EPB record stamped with the
// current wall-clock time.
type captureSink struct {
	w   *pcap.Writer
	buf []byte
	ok  bool
}

func newCaptureSink(w *pcap.Writer) *captureSink { return &captureSink{w: w, ok: true} }

func (c *captureSink) Ok() bool { return c.ok }
func (c *captureSink) put(b []byte) bool {
	if !c.ok {
		return false
	}
	c.buf = append(c.buf, b...)
	return true
}
func (c *captureSink) PutU8(v uint8) bool { return c.put([]byte{v}) }
func (c *captureSink) PutU16BE(v uint16) bool {
	return c.put([]byte{byte(v >> 8), byte(v)})
}
func (c *captureSink) PutU16LE(v uint16) bool {
	return c.put([]byte{byte(v), byte(v >> 8)})
}
func (c *captureSink) PutU32BE(v uint32) bool {
	return c.put([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
func (c *captureSink) PutU32LE(v uint32) bool {
	return c.put([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
func (c *captureSink) PutU64BE(v uint64) bool {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
	return c.put(b)
}
func (c *captureSink) PutU64LE(v uint64) bool {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(8*i))
	}
	return c.put(b)
}
func (c *captureSink) PutBytes(b []byte) bool { return c.put(b) }
func (c *captureSink) Finalize() bool {
	if !c.ok {
		c.buf = nil
		return false
	}
	ok := c.w.WritePacket(ptime.New(time.Now().Unix(), 0), c.buf)
	c.buf = nil
	return ok
}
func (c *captureSink) Abort() { c.buf = nil }

var _ stream.Writeable = (*captureSink)(nil)
