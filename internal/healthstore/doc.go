// Package healthstore is the local health-record store.
//
// Store is the narrow interface the reader and CLI use: range reads, aggregates,
// and permission checks. SQLStore implements it on database/sql with either the
// pure-Go SQLite driver (default) or PostgreSQL.
//
// Permissions mirror a device health store: every record type has a read
// permission, and with enforcement on, reading a type whose permission has not
// been granted fails with ErrPermissionDenied.
package healthstore
