// Package portalloc finds free TCP ports for the roles of an ephemeral cluster.
//
// A candidate port is drawn uniformly from [MinPort, MaxPort], bound on all
// interfaces and released immediately. The first candidate that binds is
// returned. After a bounded number of failed attempts the allocator gives up
// with an [errors.ResourceError] wrapping [errors.ErrPortsExhausted].
//
// # Known Limitation
//
// Bind-then-release is inherently racy: another process may claim the port
// between release and the moment the spawned role binds it. Callers that see
// a role fail to bind should treat it as a transient start failure.
//
// # Usage
//
//	alloc := portalloc.New(portalloc.WithMaxAttempts(13))
//	ports, err := alloc.AllocateN(3)
package portalloc
