package cluster

import (
	"github.com/Iron-Ham/instamo/internal/process"
	"github.com/Iron-Ham/instamo/internal/version"
)

// Launchable roles. NativeEntry names match the native engine's entries.
var (
	RoleCoordination = process.Role{
		Tag:         "coordination",
		JVMClass:    "org.apache.zookeeper.server.ZooKeeperServerMain",
		NativeEntry: "coordination",
	}
	RoleInitializer = process.Role{
		Tag:         "initializer",
		JVMClass:    "org.apache.accumulo.server.util.Initialize",
		NativeEntry: "initializer",
		ReadsStdin:  true,
	}
	RoleMaster = process.Role{
		Tag:         "master",
		JVMClass:    "org.apache.accumulo.server.master.Master",
		NativeEntry: "master",
	}
	RoleTabletServer = process.Role{
		Tag:         "tserver",
		JVMClass:    "org.apache.accumulo.server.tabletserver.TabletServer",
		NativeEntry: "tserver",
	}
	RoleLogger = process.Role{
		Tag:         "logger",
		JVMClass:    "org.apache.accumulo.server.logger.LogService",
		NativeEntry: "logger",
	}
)

// AllRoles lists every role the orchestrator knows.
func AllRoles() []process.Role {
	return []process.Role{RoleCoordination, RoleInitializer, RoleMaster, RoleTabletServer, RoleLogger}
}

// ServiceRoles returns the long-running roles launched after initialization,
// in launch order, for v with tservers tablet servers.
func ServiceRoles(v version.Version, tservers int) []process.Role {
	roles := []process.Role{RoleMaster}
	for i := 0; i < tservers; i++ {
		roles = append(roles, RoleTabletServer)
	}
	if v.RequiresLoggerService() {
		roles = append(roles, RoleLogger)
	}
	return roles
}
