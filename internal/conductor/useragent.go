package conductor

import (
	"fmt"
	"runtime"
)

// Version is reported in the User-Agent header. Overridden at build time.
var Version = "0.1.0"

// UserAgent identifies this server to the Conductor API.
func UserAgent() string {
	return fmt.Sprintf("qbd-mcp/%s (%s; %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
