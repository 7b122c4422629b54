// Package cluster runs an ephemeral, multi-role storage cluster inside one
// disposable working directory.
//
// [New] validates the directory, lays out its subdirectories, allocates
// ports and materializes configuration. [Cluster.Start] launches the roles in
// dependency order: the coordination service, a one-shot initializer fed
// over stdin, the master, the tablet servers and, for versions that need it,
// the write-ahead-log service. [Cluster.Stop] tears everything down.
//
// # Lifecycle
//
// A cluster moves NotStarted → Running → Stopped. Start succeeds at most
// once. Stop before Start is a no-op that leaves the cluster NotStarted;
// repeated or concurrent Stop calls collapse into one teardown. A failed
// Start stops whatever it already launched and leaves the cluster Stopped.
//
// # Crash Safety
//
// Start registers Stop with a [Hook]. The default [SignalHook] runs it when
// the orchestrator receives SIGINT or SIGTERM and then re-raises the signal.
// Tests and embedders can use [ManualHook] instead.
//
// # Usage
//
//	c, err := cluster.New(dir, "pass1234", nil)
//	if err != nil {
//	    return err
//	}
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.Stop(context.Background())
//
//	endpoint := c.CoordinatorEndpoint() // "localhost:<port>"
package cluster
