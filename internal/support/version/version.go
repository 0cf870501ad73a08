// Package version holds the build identity the control plane reports
// through its Version command. The teacher's executor.go referenced this
// package under the same import alias (versioninfo) but never shipped it;
// this is a fresh, minimal implementation.
package version

const (
	Name    = "tgrelay"
	Version = "0.1.0"
)
