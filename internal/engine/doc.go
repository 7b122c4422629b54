// Package engine implements the native stand-in role programs that the
// native runtime launches in place of the JVM classes:
//
//	coordination <zoo.cfg>   node store used for discovery
//	initializer              reads instance name and root password on stdin
//	master                   table registry and placement
//	tserver                  sorted tablets with a write-ahead log
//	logger                   standalone write-ahead-log service
//
// Every role finds its configuration the way the JVM roles do: the site
// file is looked up along the --path list, and ACCUMULO_HOME names the
// installation. Roles log JSON lines to stderr with zap and exit cleanly
// on SIGTERM or interrupt.
package engine
