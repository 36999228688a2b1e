package buildjail

import "strings"

// Environment variable names the wrapper supervisor uses to pass state to
// its proxied rustc/linker/build-script children, grounded on the original
// cackle's proxy.rs constants.
const (
	SocketPathEnv              = "CAPCAGE_SOCKET_PATH"
	ConfigPathEnv              = "CAPCAGE_CONFIG_PATH"
	OrigLinkerEnv              = "CAPCAGE_ORIG_LINKER"
	TargetDirEnv               = "CAPCAGE_TARGET_DIR"
	ManifestDirEnv             = "CAPCAGE_MANIFEST_DIR"
	RustcPathEnv               = "CAPCAGE_RUSTC_PATH"
	MultipleVersionPkgNamesEnv = "CAPCAGE_MULTIPLE_VERSION_PKG_NAMES"

	// CrateKindEnv carries the compiler wrapper's rpcproto.CrateKind
	// classification of the crate currently being compiled, set on the
	// sandboxed rustc child's environment so that the linker it in turn
	// spawns (via -C linker=self) can recover the same classification
	// without re-deriving it from argv.
	CrateKindEnv = "CAPCAGE_CRATE_KIND"
)

// RustcPassthroughEnv lists the capcage-internal environment variables that
// must reach a sandboxed rustc invocation so it can in turn reach back to the
// supervisor over the wire protocol.
var RustcPassthroughEnv = []string{SocketPathEnv, ConfigPathEnv, MultipleVersionPkgNamesEnv}

var buildToolPrefixes = []string{"CARGO", "RUSTC", "DEP_"}

var buildToolOneOffs = map[string]bool{
	"TARGET":    true,
	"OPT_LEVEL": true,
	"PROFILE":   true,
	"HOST":      true,
	"NUM_JOBS":  true,
	"DEBUG":     true,
}

// IsBuildToolEnv reports whether name is one of the build tool's own
// environment variables that should be passed through to a sandboxed child
// (cargo sets these; a build script or rustc invocation needs to see them to
// behave correctly). RUSTC_WRAPPER is explicitly excluded: the supervisor
// sets it to re-invoke itself, and a child process re-reading it would try
// to wrap itself again.
func IsBuildToolEnv(name string) bool {
	if name == "RUSTC_WRAPPER" {
		return false
	}

	for _, prefix := range buildToolPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return buildToolOneOffs[name]
}
