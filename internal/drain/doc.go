// Package drain copies the output streams of spawned role processes into
// log files.
//
// A [Drain] owns one read end (a child's stdout or stderr) and one log file.
// It moves through Idle → Draining → Closed; Closed is terminal. Each line
// read from the stream is appended to a buffered writer followed by "\n".
// Flushing and the terminal close hold the same mutex, so a flush never
// races a close and Flush after Close is a no-op.
//
// I/O failures are logged and reported to an [Observer]; they never
// propagate. Losing log output must not abort the cluster.
//
// A [Flusher] periodically flushes every registered drain so output reaches
// disk while the process runs. Each cluster owns its own Flusher.
//
// # Usage
//
//	f := drain.NewFlusher(time.Second)
//	f.Start()
//	d := drain.New(stdout, logFile, drain.WithLabels("master", "out"))
//	f.Register(d)
//	d.Start()
//	...
//	f.Stop() // final flush
package drain
