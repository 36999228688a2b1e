package analyzer

import (
	"github.com/capcage/capcage/internal/captrie"
	"github.com/capcage/capcage/internal/symbol"
)

// UsageRecord is one attributed capability reference (spec §4.4 output): a
// from-package reached the given capability through a symbol-to-symbol
// reference at Location.
type UsageRecord struct {
	FromPackage string
	FromSymbol  string
	ToSymbol    string
	Capability  captrie.CapabilityName
	Location    symbol.SourceLocation
}

// PackageResolver attributes a source path to the package that owns it,
// the fallback half of step 3d's "debug info over the source file
// (authoritative) or else via package_for_path" attribution rule.
// internal/pkgindex implements this.
type PackageResolver interface {
	PackageForPath(path string) (pkg string, ok bool)
}
