// ABOUTME: In-memory registry of visible service instances
// ABOUTME: Identity-keyed table with last-seen tracking and stale eviction
package browser

import (
	"sync"
	"time"

	"github.com/Salaam-Protocol/salaam-go/pkg/protocol"
)

// Service describes one remotely-observed service instance. Address is the
// sender's IP in string form, without a port: announcers may send from a
// fresh ephemeral port each time, so the source port is not part of who
// they are.
type Service struct {
	Address     string
	HostName    string
	ServiceType string
	Name        string
	Port        int
	Message     string
}

// serviceKey is the identity tuple. The status message is mutable payload
// and deliberately excluded.
type serviceKey struct {
	address     string
	hostName    string
	serviceType string
	name        string
	port        int
}

func (s Service) key() serviceKey {
	return serviceKey{s.Address, s.HostName, s.ServiceType, s.Name, s.Port}
}

type registryEntry struct {
	service  Service
	lastSeen time.Time
}

// transition describes what applying an announcement did to the registry.
type transition int

const (
	transitionNone transition = iota
	transitionAppeared
	transitionChanged
	transitionDisappeared
)

// registry holds every instance the browser currently believes is alive.
// The receive loop and the sweeper both touch it, so every operation runs
// under the one mutex; entries never escape, only Service copies do.
type registry struct {
	mu      sync.Mutex
	entries map[serviceKey]*registryEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[serviceKey]*registryEntry)}
}

// apply folds one accepted announcement into the registry and reports the
// resulting transition. The returned Service is the event payload: for a
// disappearance it is the stored instance, otherwise the refreshed one.
func (r *registry) apply(svc Service, code string, now time.Time) (Service, transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := svc.key()
	entry, known := r.entries[k]

	if code == protocol.CodeEndOfService {
		if !known {
			return svc, transitionNone
		}
		delete(r.entries, k)
		return entry.service, transitionDisappeared
	}

	if !known {
		r.entries[k] = &registryEntry{service: svc, lastSeen: now}
		return svc, transitionAppeared
	}

	entry.lastSeen = now
	if entry.service.Message != svc.Message {
		entry.service.Message = svc.Message
		return entry.service, transitionChanged
	}
	return entry.service, transitionNone
}

// sweep removes every entry not refreshed within the window and returns the
// evicted instances. Eviction happens under the lock, so a late EOS for a
// swept identity finds nothing and stays silent.
func (r *registry) sweep(now time.Time, window time.Duration) []Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []Service
	for k, entry := range r.entries {
		if now.Sub(entry.lastSeen) > window {
			stale = append(stale, entry.service)
			delete(r.entries, k)
		}
	}
	return stale
}

// snapshot returns copies of the current instances.
func (r *registry) snapshot() []Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	services := make([]Service, 0, len(r.entries))
	for _, entry := range r.entries {
		services = append(services, entry.service)
	}
	return services
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[serviceKey]*registryEntry)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
