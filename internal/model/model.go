// Package model defines core data structures for difftrace.
package model

// VirtualRootPath is the source path of a workspace member that stands in
// for the repository root itself. Such a package owns no files of its own
// and is never surfaced as a real test target.
const VirtualRootPath = "."

// WorkspacePackage is a single workspace member from the lock file.
// All dependency fields reference only other workspace members; external
// (registry) dependencies are filtered out during parsing.
type WorkspacePackage struct {
	Name                 string
	SourcePath           string // workspace-relative directory, no trailing slash
	Dependencies         []string
	OptionalDependencies map[string][]string
	DevDependencies      map[string][]string
}

// IsVirtualRoot reports whether the package represents the workspace root
// rather than a directory of its own.
func (p *WorkspacePackage) IsVirtualRoot() bool {
	return p.SourcePath == VirtualRootPath
}

// DependencyGraph is the parsed, directed graph over workspace packages.
// Forward maps a package to the members it depends on; Reverse is the
// exact transpose. Both are built once and are read-only afterward.
type DependencyGraph struct {
	Packages map[string]*WorkspacePackage
	Forward  map[string]map[string]struct{}
	Reverse  map[string]map[string]struct{}
}

// VirtualRoots returns the names of all virtual-root packages.
func (g *DependencyGraph) VirtualRoots() map[string]struct{} {
	roots := make(map[string]struct{})
	for name, pkg := range g.Packages {
		if pkg.IsVirtualRoot() {
			roots[name] = struct{}{}
		}
	}
	return roots
}

// WarningCode identifies a non-fatal anomaly found while parsing.
type WarningCode string

const (
	WarnUnknownLockVersion WarningCode = "unknown-lock-version"
	WarnDuplicateMembers   WarningCode = "duplicate-members"
	WarnNoSourcePath       WarningCode = "no-source-path"
)

// Warning is a non-fatal diagnostic produced during graph construction.
// Warnings are returned to the caller rather than logged globally.
type Warning struct {
	Code    WarningCode
	Message string
}

// Result is the composed answer surfaced to callers: the stable contract
// for JSON output and CI integration. DirectlyChanged and Affected are
// sorted; Affected never contains virtual-root packages.
type Result struct {
	DirectlyChanged []string `json:"directly_changed"`
	Affected        []string `json:"affected"`
	TestAll         bool     `json:"test_all"`

	// FileMapping is populated only in detailed mode: changed file to
	// owning package name, "" when no package owns the file.
	FileMapping map[string]string `json:"file_mapping,omitempty"`
}
