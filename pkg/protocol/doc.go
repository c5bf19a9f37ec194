// ABOUTME: Salaam wire protocol package
// ABOUTME: Encodes and decodes the text-over-UDP announcement envelope
// Package protocol implements the Salaam announcement wire format.
//
// An announcement travels as a single UDP broadcast datagram:
//
//	Salaam:<base64(payload)>
//	payload = "<N>;<hostName>;<serviceType>;<name>;<port>;<message>;[<CODE>]"
//
// N is the character count of the payload after the length field and its
// separator. CODE is an optional control token such as "EOS" (end of
// service). Decode never returns an error: arbitrary traffic on the shared
// port is expected, so anything malformed is simply rejected.
package protocol
