// Package discovery turns a scanned QR payload into an export session.
//
// The QR code holds a URL. Resolving it is a GET that returns the export
// configuration as JSON. The resolved configuration becomes the single active
// session, replacing any earlier one, and is persisted to a session file so
// later CLI invocations can export against it until it expires.
package discovery
