// ABOUTME: Browser lifecycle controller
// ABOUTME: Owns the UDP receive loop, the registry, and the expiration sweeper
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Salaam-Protocol/salaam-go/internal/netutil"
	"github.com/Salaam-Protocol/salaam-go/pkg/protocol"
)

// ErrServiceTypeSeparator is returned by Start when the requested service
// type contains the ';' field separator, which would corrupt the wire
// format.
var ErrServiceTypeSeparator = errors.New("service type must not contain ';'")

// ErrAlreadyStarted is returned by Start when the browser is running.
// Callers that want a different service-type filter must Stop first.
var ErrAlreadyStarted = errors.New("browser already started")

// WildcardServiceType matches announcements of every service type.
const WildcardServiceType = "*"

// DefaultDisappearanceDelay is how long an instance may stay silent before
// the sweeper declares it gone.
const DefaultDisappearanceDelay = 60 * time.Second

// The sweeper runs several times per disappearance window so detection
// latency stays a fraction of the window.
const sweepsPerWindow = 4

// Config holds browser configuration. The zero value is usable: it listens
// on the protocol's well-known port, uses the default disappearance delay,
// drops local traffic, and logs nothing.
type Config struct {
	// Port is the UDP port to listen on (default protocol.DefaultPort).
	Port int

	// DisappearanceDelay is the silence window after which an instance is
	// considered gone (default DefaultDisappearanceDelay).
	DisappearanceDelay time.Duration

	// ReceiveFromLocalMachine processes announcements from this machine
	// instead of discarding them; they are tagged Local in events.
	ReceiveFromLocalMachine bool

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *zerolog.Logger
}

// Browser listens for Salaam announcements and tracks the service instances
// currently visible on the network.
type Browser struct {
	log          zerolog.Logger
	registry     *registry
	events       chan Event
	delayChanged chan struct{}

	mu           sync.RWMutex
	running      bool
	serviceType  string // last requested filter, reused by SetEnabled(true)
	port         int
	delay        time.Duration
	receiveLocal bool
	localHost    string
	localAddrs   []net.IP
	conn         net.PacketConn
	cancel       context.CancelFunc

	// Collaborators, replaceable in tests.
	listenPacket func(port int) (net.PacketConn, error)
	hostname     func() (string, error)
	localIPs     func() ([]net.IP, error)
}

// New creates a browser. It does not touch the network until Start.
func New(config Config) *Browser {
	if config.Port == 0 {
		config.Port = protocol.DefaultPort
	}
	if config.DisappearanceDelay == 0 {
		config.DisappearanceDelay = DefaultDisappearanceDelay
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Browser{
		log:          log,
		registry:     newRegistry(),
		events:       make(chan Event, 64),
		delayChanged: make(chan struct{}, 1),
		serviceType:  WildcardServiceType,
		port:         config.Port,
		delay:        config.DisappearanceDelay,
		receiveLocal: config.ReceiveFromLocalMachine,
		listenPacket: func(port int) (net.PacketConn, error) {
			return net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
		},
		hostname: os.Hostname,
		localIPs: netutil.LocalIPs,
	}
}

// Events returns the browser's event stream. The channel stays open across
// Start/Stop cycles.
func (b *Browser) Events() <-chan Event {
	return b.events
}

// Start begins browsing for the given service type ("*" for all types).
// It clears any previous registry state, snapshots the machine's identity
// for local-traffic classification, binds the listen socket, and launches
// the receive loop and the sweeper. A bind or resolution failure rolls
// everything back, emits StartFailed, and returns the error. Starting an
// already-running browser returns ErrAlreadyStarted and leaves the current
// filter untouched.
func (b *Browser) Start(serviceType string) error {
	if strings.Contains(serviceType, ";") {
		return fmt.Errorf("%w: %q", ErrServiceTypeSeparator, serviceType)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrAlreadyStarted
	}

	b.serviceType = serviceType
	b.registry.clear()

	host, err := b.hostname()
	if err != nil {
		b.log.Error().Err(err).Msg("start failed: cannot resolve local host name")
		b.emit(Event{Type: StartFailed})
		return fmt.Errorf("resolving local host name: %w", err)
	}

	addrs, err := b.localIPs()
	if err != nil {
		b.log.Error().Err(err).Msg("start failed: cannot enumerate local addresses")
		b.emit(Event{Type: StartFailed})
		return fmt.Errorf("enumerating local addresses: %w", err)
	}

	conn, err := b.listenPacket(b.port)
	if err != nil {
		b.log.Error().Err(err).Int("port", b.port).Msg("start failed: cannot bind")
		b.emit(Event{Type: StartFailed})
		return fmt.Errorf("binding udp port %d: %w", b.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.localHost = host
	b.localAddrs = addrs
	b.conn = conn
	b.cancel = cancel
	b.running = true

	go b.receiveLoop(ctx, conn)
	go b.sweepLoop(ctx)

	b.log.Info().Str("service_type", serviceType).Int("port", b.port).Msg("browser started")
	b.emit(Event{Type: Started})
	return nil
}

// Stop halts the sweeper, closes the listen socket, and emits Stopped.
// It is idempotent and never fails; a datagram already being applied may
// still finish and produce its event.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	b.cancel()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}

	b.log.Info().Msg("browser stopped")
	b.emit(Event{Type: Stopped})
}

// Enabled reports whether the browser is running.
func (b *Browser) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// SetEnabled starts the browser with the last-used service type, or stops
// it. Enabling an already-enabled browser is a no-op.
func (b *Browser) SetEnabled(enabled bool) error {
	if enabled {
		b.mu.RLock()
		running := b.running
		serviceType := b.serviceType
		b.mu.RUnlock()
		if running {
			return nil
		}
		return b.Start(serviceType)
	}
	b.Stop()
	return nil
}

// DisappearanceDelay returns the current silence window.
func (b *Browser) DisappearanceDelay() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.delay
}

// SetDisappearanceDelay changes the silence window. Safe while running: the
// sweeper is woken so the new window and cadence take effect immediately,
// not after a tick of the old cadence.
func (b *Browser) SetDisappearanceDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	b.delay = d
	b.mu.Unlock()

	select {
	case b.delayChanged <- struct{}{}:
	default:
	}
}

// ReceiveFromLocalMachine reports whether local announcements are
// processed.
func (b *Browser) ReceiveFromLocalMachine() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.receiveLocal
}

// SetReceiveFromLocalMachine controls whether announcements originating on
// this machine are processed (tagged Local) or silently discarded.
func (b *Browser) SetReceiveFromLocalMachine(receive bool) {
	b.mu.Lock()
	b.receiveLocal = receive
	b.mu.Unlock()
}

// Services returns a snapshot of the instances currently believed alive.
func (b *Browser) Services() []Service {
	return b.registry.snapshot()
}

// receiveLoop reads datagrams until the socket closes. A read failure that
// is not a deliberate Stop emits BrowserFailed once and ends the loop.
func (b *Browser) receiveLoop(ctx context.Context, conn net.PacketConn) {
	buf := make([]byte, 2048)
	for {
		n, sender, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			b.log.Error().Err(err).Msg("receive loop failed")
			b.emit(Event{Type: BrowserFailed})
			return
		}
		b.handleDatagram(buf[:n], sender)
	}
}

// handleDatagram decodes, classifies, filters, and applies one datagram.
func (b *Browser) handleDatagram(data []byte, sender net.Addr) {
	ann, ok := protocol.Decode(data, sender)
	if !ok {
		b.log.Debug().Stringer("sender", sender).Msg("dropped undecodable datagram")
		return
	}

	b.mu.RLock()
	serviceType := b.serviceType
	receiveLocal := b.receiveLocal
	b.mu.RUnlock()

	ip := senderIP(sender)
	local := b.classifyLocal(ann.HostName, ip)
	if local && !receiveLocal {
		b.log.Debug().Str("host", ann.HostName).Msg("dropped local announcement")
		return
	}
	if !serviceTypeMatches(serviceType, ann.ServiceType) {
		return
	}

	address := sender.String()
	if ip != nil {
		address = ip.String()
	}
	svc := Service{
		Address:     address,
		HostName:    ann.HostName,
		ServiceType: ann.ServiceType,
		Name:        ann.Name,
		Port:        ann.Port,
		Message:     ann.Message,
	}

	result, tr := b.registry.apply(svc, ann.Code, time.Now())
	switch tr {
	case transitionAppeared:
		b.log.Info().Str("name", result.Name).Str("address", result.Address).Msg("service appeared")
		b.emit(Event{Type: ServiceAppeared, Service: &result, Local: local})
	case transitionChanged:
		b.log.Debug().Str("name", result.Name).Str("message", result.Message).Msg("service changed")
		b.emit(Event{Type: ServiceChanged, Service: &result, Local: local})
	case transitionDisappeared:
		b.log.Info().Str("name", result.Name).Msg("service announced end of service")
		b.emit(Event{Type: ServiceDisappeared, Service: &result, Local: local})
	}
}

// sweepLoop periodically evicts instances that stopped announcing.
func (b *Browser) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			window := b.DisappearanceDelay()
			for _, svc := range b.registry.sweep(time.Now(), window) {
				local := b.classifyLocal(svc.HostName, net.ParseIP(svc.Address))
				b.log.Info().Str("name", svc.Name).Dur("window", window).Msg("service timed out")
				b.emit(Event{Type: ServiceDisappeared, Service: &svc, Local: local})
			}
			ticker.Reset(b.sweepInterval())
		case <-b.delayChanged:
			// Re-arm right away; a pending tick scheduled under the old
			// cadence could otherwise defer eviction by the old interval.
			ticker.Reset(b.sweepInterval())
		case <-ctx.Done():
			return
		}
	}
}

func (b *Browser) sweepInterval() time.Duration {
	interval := b.DisappearanceDelay() / sweepsPerWindow
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

// classifyLocal reports whether an announcement originated on this machine:
// the announced host name matches ours and the sender address is loopback
// or one of our own.
func (b *Browser) classifyLocal(hostName string, ip net.IP) bool {
	b.mu.RLock()
	localHost := b.localHost
	localAddrs := b.localAddrs
	b.mu.RUnlock()

	if localHost == "" || !strings.EqualFold(hostName, localHost) {
		return false
	}
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || netutil.Contains(localAddrs, ip)
}

// emit delivers an event without blocking the receive path. A full buffer
// drops the event and logs it; the registry remains the source of truth.
func (b *Browser) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		b.log.Warn().Stringer("event", ev.Type).Msg("event dropped: consumer not keeping up")
	}
}

func serviceTypeMatches(filter, announced string) bool {
	return filter == WildcardServiceType || strings.EqualFold(filter, announced)
}

func senderIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	default:
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			return net.ParseIP(host)
		}
		return net.ParseIP(addr.String())
	}
}
