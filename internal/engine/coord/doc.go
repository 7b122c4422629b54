// Package coord is the native coordination service: a small hierarchical
// node store served over HTTP, plus the client the other roles and the
// sample client use to find each other.
//
// Nodes are addressed by slash-separated paths. Writing a node creates its
// missing parents. Deleting a node removes its descendants. The store is
// persisted as a JSON snapshot in the coordination data directory after
// every change, so a restarted service sees the same tree.
package coord
