package policy

import "fmt"

// Importer resolves a package's own exported capability declarations, so a
// dependent can pull them in via `import = [...]`. It is implemented by
// internal/pkgindex, kept as an interface here to avoid a dependency from
// policy (a leaf package) onto the package-graph extractor.
type Importer interface {
	// ExportedCapability returns the include-path-prefix list a package
	// exports under the given capability name, by reading
	// <package-dir>/<policy-exports-path>. Ok is false if the package
	// doesn't declare that export.
	ExportedCapability(pkg, api string) (includes []string, ok bool)
}

// resolveImports walks every package policy's Import list, and for each
// declared `<api>` injects a new capability named `<package>::<api>` whose
// include list is the package's own exported prefixes for that api.
// Repeated imports of the same (package, api) pair, e.g. from several
// scopes of one package, define the capability once. It is an error for a
// policy author to also declare `api."<package>::<api>"` directly.
func resolveImports(p *Policy, importer Importer) error {
	type pkgAPI struct{ pkg, api string }

	seen := make(map[pkgAPI]struct{})

	for selector, pkgPolicy := range p.Packages {
		for _, api := range pkgPolicy.Import {
			seen[pkgAPI{pkg: selector.Package, api: api}] = struct{}{}
		}
	}

	for pa := range seen {
		includes, ok := importer.ExportedCapability(pa.pkg, pa.api)
		if !ok {
			return fmt.Errorf("policy: package %q imports undefined api %q", pa.pkg, pa.api)
		}

		qualified := CapabilityName(pa.pkg + "::" + pa.api)

		if _, exists := p.Capabilities[qualified]; exists {
			return fmt.Errorf("policy: capability %q defined twice (once via import)", qualified)
		}

		p.Capabilities[qualified] = CapabilityRule{Include: includes}
	}

	return nil
}
