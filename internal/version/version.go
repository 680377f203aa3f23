// Package version reports this build's version string for --version and
// daemon greeting banners.
package version

import "fmt"

// Version is overridable at link time via -ldflags -X.
var Version = "dev"

// ProtocolVersion mirrors rsync.ProtocolVersion for display purposes only;
// callers negotiating the wire protocol use the rsync package constant.
const ProtocolVersion = 32

// Read formats the version banner rsync(1)'s --version prints.
func Read() string {
	return fmt.Sprintf("rsync-sub026 version %s  protocol version %d", Version, ProtocolVersion)
}
