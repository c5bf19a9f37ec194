// ABOUTME: Salaam announcement publisher package
// ABOUTME: Periodically broadcasts this host's service presence over UDP
// Package announcer implements the publishing half of the Salaam protocol.
//
// An Announcer broadcasts an announcement for one local service instance on
// a fixed interval, and broadcasts an end-of-service announcement when
// stopped so browsers can drop the instance immediately instead of waiting
// for their disappearance window.
//
// Example:
//
//	a, err := announcer.New(announcer.Config{
//	    ServiceType: "print",
//	    Name:        "Printer1",
//	    Port:        9100,
//	    Message:     "ready",
//	})
//	err = a.Start()
//	defer a.Stop()
package announcer
