// ABOUTME: Browser event stream types
// ABOUTME: Tagged events covering instance and browser lifecycle
package browser

// EventType tags an entry on the browser's event stream.
type EventType int

const (
	// ServiceAppeared reports a service instance seen for the first time.
	ServiceAppeared EventType = iota

	// ServiceChanged reports a known instance whose status message changed.
	ServiceChanged

	// ServiceDisappeared reports an instance removed by timeout or by an
	// end-of-service announcement.
	ServiceDisappeared

	// Started reports that the browser is listening.
	Started

	// Stopped reports that the browser stopped listening.
	Stopped

	// StartFailed reports that Start could not bring the browser up; the
	// browser is fully stopped and the caller decides whether to retry.
	StartFailed

	// BrowserFailed reports that the receive loop died while the browser
	// was running. The browser does not self-heal; call Stop then Start.
	BrowserFailed
)

// String returns the event type's name.
func (t EventType) String() string {
	switch t {
	case ServiceAppeared:
		return "service-appeared"
	case ServiceChanged:
		return "service-changed"
	case ServiceDisappeared:
		return "service-disappeared"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case StartFailed:
		return "start-failed"
	case BrowserFailed:
		return "browser-failed"
	default:
		return "unknown"
	}
}

// Event is one entry on the browser's event stream. Service is nil for
// browser-level events (Started, Stopped, StartFailed, BrowserFailed).
// Local is true when the instance originated on this machine.
type Event struct {
	Type    EventType
	Service *Service
	Local   bool
}
