// Package process spawns the role processes of a cluster.
//
// A [Runtime] turns a [Role] and its arguments into an argument vector and
// environment. Two runtimes exist: [JVMRuntime] launches the storage engine's
// Java entry points, [NativeRuntime] re-executes a Go binary that implements
// the roles itself. Both receive the same isolated path list rooted at the
// cluster's configuration and library directories, and both export
// ACCUMULO_HOME and ACCUMULO_LOG_DIR.
//
// [Launcher.Spawn] starts the process in its own process group, attaches a
// log drain to each output stream and returns a [Handle]. Output is written
// to <role>_<pid>.out and <role>_<pid>.err in the log directory.
//
// # Teardown
//
// [Handle.Destroy] sends SIGTERM to the process group and SIGKILL after a
// grace period. It is idempotent and a no-op for processes that already
// exited. Once a process exits its drains get a bounded grace period to reach
// end of stream, so a grandchild that inherited a pipe cannot keep a drain
// open forever.
package process
