package coord

import (
	"path"
	"strings"
)

// Root is the parent of every node the cluster writes.
const Root = "/accumulo"

// Clean normalizes p to an absolute slash path without a trailing slash.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimLeft(p, "/"))
}

// InstancePath maps an instance name to the node holding its id.
func InstancePath(name string) string {
	return path.Join(Root, "instances", name)
}

// InstanceRoot is the subtree owned by instance id.
func InstanceRoot(id string) string {
	return path.Join(Root, id)
}

// MasterLockPath holds the active master's address.
func MasterLockPath(id string) string {
	return path.Join(InstanceRoot(id), "masters", "lock")
}

// TabletServersPath lists registered tablet servers by address.
func TabletServersPath(id string) string {
	return path.Join(InstanceRoot(id), "tservers")
}

// LoggersPath lists registered write-ahead-log services by address.
func LoggersPath(id string) string {
	return path.Join(InstanceRoot(id), "loggers")
}

// TablesPath lists tables by name.
func TablesPath(id string) string {
	return path.Join(InstanceRoot(id), "tables")
}

// TablePath holds one table's assignment.
func TablePath(id, table string) string {
	return path.Join(TablesPath(id), table)
}

// UserPath holds a user's password digest.
func UserPath(id, user string) string {
	return path.Join(InstanceRoot(id), "users", user)
}
