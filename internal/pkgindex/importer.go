package pkgindex

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ExportsFileName is the file a package ships, alongside its Cargo.toml, to
// export reusable capability include-lists for dependents to `import`.
const ExportsFileName = "capcage-exports.toml"

type exportsDoc struct {
	API map[string]exportsAPIDoc `toml:"api"`
}

type exportsAPIDoc struct {
	Include []string `toml:"include"`
}

// CapabilityImporter adapts Index to internal/policy's Importer interface:
// ExportedCapability reads <package-dir>/capcage-exports.toml.
type CapabilityImporter struct {
	Index *Index
}

// ExportedCapability implements policy.Importer.
func (c CapabilityImporter) ExportedCapability(pkgName, api string) ([]string, bool) {
	for _, id := range c.Index.all {
		if id.Name != pkgName {
			continue
		}

		dir, ok := c.Index.ManifestDir(id)
		if !ok {
			continue
		}

		doc, err := loadExportsDoc(filepath.Join(dir, ExportsFileName))
		if err != nil {
			continue
		}

		if entry, ok := doc.API[api]; ok {
			return entry.Include, true
		}
	}

	return nil, false
}

// ExportedAPINames returns every (package, api) pair any indexed package
// declares in its own capcage-exports.toml, the raw material the policy
// hygiene pass uses to flag an export that nothing ever imports.
func (c CapabilityImporter) ExportedAPINames() map[string][]string {
	out := make(map[string][]string)

	for _, id := range c.Index.all {
		dir, ok := c.Index.ManifestDir(id)
		if !ok {
			continue
		}

		doc, err := loadExportsDoc(filepath.Join(dir, ExportsFileName))
		if err != nil {
			continue
		}

		for api := range doc.API {
			out[id.Name] = append(out[id.Name], api)
		}
	}

	return out
}

func loadExportsDoc(path string) (*exportsDoc, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var doc exportsDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}
