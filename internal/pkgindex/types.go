// Package pkgindex implements the package index (spec §4.1): it runs the
// host build tool's metadata subcommand, builds the package DAG, and
// answers the dependency/attribution/policy-coverage queries the rest of
// capcage needs.
package pkgindex

// PackageId identifies one resolved package. Two IDs compare equal (via
// Equal) iff Name and Version match; UniqueName is a display hint only,
// cleared whenever the index sees more than one version of the same name.
type PackageId struct {
	Name       string
	Version    string
	UniqueName bool
}

// Equal reports whether two PackageIds name the same package, ignoring the
// UniqueName display hint.
func (p PackageId) Equal(other PackageId) bool {
	return p.Name == other.Name && p.Version == other.Version
}

func (p PackageId) String() string {
	return p.Name + "@" + p.Version
}

// CrateKind distinguishes which build output of a package is meant.
type CrateKind int

const (
	Primary CrateKind = iota
	BuildScript
	Test
)

// CrateSelector identifies a specific build output within a package.
type CrateSelector struct {
	Package PackageId
	Kind    CrateKind
}
