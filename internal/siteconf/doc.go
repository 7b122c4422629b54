// Package siteconf materializes the two configuration files a cluster's role
// processes read at startup: the storage engine's site file
// (accumulo-site.xml) and the coordination service's zoo.cfg.
//
// Rendering is deterministic. Computed defaults come first in a fixed order,
// skipping any key the caller overrides; overrides follow, sorted by key.
// Both files can be parsed back with [ReadSite] and [ReadCoordination], which
// the native engine roles use to discover their ports and directories.
//
// All I/O goes through an [afero.Fs] so layouts can be materialized in memory
// under test.
package siteconf
