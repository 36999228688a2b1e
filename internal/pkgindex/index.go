package pkgindex

import (
	"path/filepath"
	"sort"
	"strings"
)

// key is the stable identity of a package (name+version), used for every
// internal map so a later UniqueName flip doesn't change a PackageId's
// identity as a map key - PackageId itself is not used as a map key
// anywhere in this package, since Go struct-key equality would otherwise
// compare UniqueName too, silently splitting one package into two entries.
type key string

func keyOf(name, version string) key {
	return key(name + "@" + version)
}

// Index is the resolved package DAG plus the lookup tables the rest of
// capcage needs: lib-name attribution, transitive dependency sets, and
// source-path-to-package fallback attribution.
type Index struct {
	byCargoID   map[string]key
	canonical   map[key]PackageId // the one PackageId value (with correct UniqueName) for each key
	libName     map[key]string    // primary lib/proc-macro target name, "" if none
	libNameToID map[string]key    // lib-name (hyphens->underscores) -> key
	deps        map[key][]key
	hasBuild    map[key]bool
	hasTarget   map[key]bool
	procMacro   map[key]bool
	manifestDir map[key]string
	all         []PackageId
}

// New runs the host build tool's metadata subcommand in workspaceRoot and
// builds the package index from its output. Failures are fatal, per spec
// §4.1.
func New(workspaceRoot string) (*Index, error) {
	meta, err := runCargoMetadata(workspaceRoot)
	if err != nil {
		return nil, err
	}

	return buildIndex(meta)
}

func buildIndex(meta *rawMetadata) (*Index, error) {
	idx := &Index{
		byCargoID:   make(map[string]key),
		canonical:   make(map[key]PackageId),
		libName:     make(map[key]string),
		libNameToID: make(map[string]key),
		deps:        make(map[key][]key),
		hasBuild:    make(map[key]bool),
		hasTarget:   make(map[key]bool),
		procMacro:   make(map[key]bool),
		manifestDir: make(map[key]string),
	}

	byName := make(map[string][]key)

	for _, pkg := range meta.Packages {
		k := keyOf(pkg.Name, pkg.Version)

		idx.byCargoID[pkg.ID] = k
		idx.canonical[k] = PackageId{Name: pkg.Name, Version: pkg.Version, UniqueName: true}
		idx.manifestDir[k] = filepath.Dir(pkg.ManifestPath)
		byName[pkg.Name] = append(byName[pkg.Name], k)

		for _, target := range pkg.Targets {
			idx.hasTarget[k] = true

			if hasKind(target.Kind, "custom-build") {
				idx.hasBuild[k] = true

				continue
			}

			if hasKind(target.Kind, "lib") || hasKind(target.Kind, "proc-macro") {
				libName := strings.ReplaceAll(target.Name, "-", "_")
				idx.libName[k] = libName
				idx.libNameToID[libName] = k
			}

			if hasKind(target.Kind, "proc-macro") {
				idx.procMacro[k] = true
			}
		}
	}

	// The unique-name flag is cleared for every package sharing its name
	// with another resolved version.
	for _, keys := range byName {
		if len(keys) <= 1 {
			continue
		}

		for _, k := range keys {
			id := idx.canonical[k]
			id.UniqueName = false
			idx.canonical[k] = id
		}
	}

	for _, k := range sortedKeysOf(byName) {
		idx.all = append(idx.all, idx.canonical[k])
	}

	for _, node := range meta.Resolve.Nodes {
		from, ok := idx.byCargoID[node.ID]
		if !ok {
			continue
		}

		for _, dep := range node.Deps {
			if !dep.isNormalDep() {
				continue
			}

			to, ok := idx.byCargoID[dep.Pkg]
			if !ok {
				continue
			}

			// A proc-macro dependency runs entirely at the dependent's build
			// time, compiled for the host rather than the target and never
			// linked into anything, so it can't contribute capability usage
			// to whatever finally links - cargo tree --edges
			// normal,no-proc-macro excludes it the same way.
			if idx.procMacro[to] {
				continue
			}

			idx.deps[from] = append(idx.deps[from], to)
		}
	}

	return idx, nil
}

// sortedKeysOf flattens byName's values in a deterministic order, so two
// runs over the same metadata build Index.All() in the same order.
func sortedKeysOf(byName map[string][]key) []key {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}

	sort.Strings(names)

	var out []key
	for _, name := range names {
		out = append(out, byName[name]...)
	}

	return out
}

func hasKind(kinds []string, want string) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}

	return false
}

// TransitiveDeps returns every lib name (hyphens normalized to underscores)
// reachable from id via normal (non-dev, non-build) dependency edges,
// directly or indirectly.
func (idx *Index) TransitiveDeps(id PackageId) map[string]struct{} {
	out := make(map[string]struct{})
	visited := make(map[key]bool)

	var walk func(key)
	walk = func(cur key) {
		if visited[cur] {
			return
		}
		visited[cur] = true

		for _, dep := range idx.deps[cur] {
			if name, ok := idx.libName[dep]; ok && name != "" {
				out[name] = struct{}{}
			}

			walk(dep)
		}
	}

	walk(keyOf(id.Name, id.Version))

	return out
}

// PackageForLibName resolves a lib-name (as it appears in a linked symbol's
// crate name, hyphens already normalized to underscores) back to the
// PackageId that produced it.
func (idx *Index) PackageForLibName(libName string) (PackageId, bool) {
	k, ok := idx.libNameToID[libName]
	if !ok {
		return PackageId{}, false
	}

	return idx.canonical[k], true
}

// PackageForPath implements package_for_path: walks path's parent
// directories until one matches a known package's manifest directory. This
// is the fallback attribution path; normal attribution is debug-info-based
// (spec §4.4 step 3d).
func (idx *Index) PackageForPath(path string) (string, bool) {
	k, ok := idx.keyForPath(path)
	if !ok {
		return "", false
	}

	if name, ok := idx.libName[k]; ok && name != "" {
		return name, true
	}

	return idx.canonical[k].Name, true
}

func (idx *Index) keyForPath(path string) (key, bool) {
	dir := filepath.Dir(path)

	for {
		for k, manifestDir := range idx.manifestDir {
			if dir == manifestDir {
				return k, true
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}

		dir = parent
	}
}

// ManifestDir returns the directory containing id's Cargo.toml, used by the
// capability importer to look for a sibling exported-capability file.
func (idx *Index) ManifestDir(id PackageId) (string, bool) {
	dir, ok := idx.manifestDir[keyOf(id.Name, id.Version)]

	return dir, ok
}

// All returns every resolved package, in deterministic (name, then
// metadata) order.
func (idx *Index) All() []PackageId {
	return idx.all
}

// HasBuildScript reports whether id has a `build.rs` custom-build target.
func (idx *Index) HasBuildScript(id PackageId) bool {
	return idx.hasBuild[keyOf(id.Name, id.Version)]
}

// HasTargets reports whether id has any build target at all (used as the
// Test-scope relevance heuristic: a package with no targets can't have
// tests either).
func (idx *Index) HasTargets(id PackageId) bool {
	return idx.hasTarget[keyOf(id.Name, id.Version)]
}

// IsProcMacro reports whether id's library target is a proc-macro, used by
// the policy hygiene pass to produce IsProcMacro problems for packages that
// haven't set allow_proc_macro despite needing it.
func (idx *Index) IsProcMacro(id PackageId) bool {
	return idx.procMacro[keyOf(id.Name, id.Version)]
}

// LibName returns id's primary lib/proc-macro target name (hyphens
// normalized to underscores, matching what would appear in a linked
// symbol's crate name), or "" if id has no library target.
func (idx *Index) LibName(id PackageId) string {
	return idx.libName[keyOf(id.Name, id.Version)]
}
