// ABOUTME: Salaam service browser package
// ABOUTME: Listens for broadcast announcements and tracks live service instances
// Package browser implements the receiving half of the Salaam protocol.
//
// A Browser listens for announcement broadcasts on the protocol's UDP port,
// keeps a registry of the service instances it currently sees, expires
// instances that stop announcing, and reports lifecycle changes on a single
// event stream.
//
// Example:
//
//	b := browser.New(browser.Config{})
//	if err := b.Start("print"); err != nil {
//	    log.Fatal(err)
//	}
//	for ev := range b.Events() {
//	    switch ev.Type {
//	    case browser.ServiceAppeared:
//	        fmt.Printf("found %s on %s:%d\n", ev.Service.Name, ev.Service.Address, ev.Service.Port)
//	    case browser.ServiceDisappeared:
//	        fmt.Printf("lost %s\n", ev.Service.Name)
//	    }
//	}
package browser
