// Package tablet holds the native tablet server's data model: mutations,
// key/value entries, an in-memory sorted tablet, and the write-ahead log
// that makes applied mutations survive a restart.
package tablet
