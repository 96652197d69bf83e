// Package lockfile parses uv.lock files into the workspace dependency graph.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"difftrace/internal/model"
)

// SupportedLockVersion is the uv.lock schema version this parser understands.
// Other versions are parsed best-effort with a warning.
const SupportedLockVersion = 1

// Options select which dependency groups contribute edges to the graph.
// Unconditional dependencies are always included.
type Options struct {
	IncludeDev      bool
	IncludeOptional bool
}

// DefaultOptions includes optional and dev groups, matching uv's default
// sync behavior.
func DefaultOptions() Options {
	return Options{IncludeDev: true, IncludeOptional: true}
}

// ManifestError reports a structurally invalid or semantically incomplete
// lock file. It always names the offending file and the specific defect.
type ManifestError struct {
	Path   string
	Detail string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Detail)
}

// lockDoc is a typed mirror of the subset of uv.lock difftrace consumes.
// Fields we never read (wheels, sdist, registry metadata) are ignored by
// the decoder; type mismatches on fields we do read fail the parse.
type lockDoc struct {
	Version  *int           `toml:"version"`
	Manifest *manifestTable `toml:"manifest"`
	Packages []packageTable `toml:"package"`
}

type manifestTable struct {
	Members []string `toml:"members"`
}

type packageTable struct {
	Name                 string              `toml:"name"`
	Source               sourceTable         `toml:"source"`
	Dependencies         []depRef            `toml:"dependencies"`
	OptionalDependencies map[string][]depRef `toml:"optional-dependencies"`
	DevDependencies      map[string][]depRef `toml:"dev-dependencies"`
}

// sourceTable is the source-descriptor variant. At most one field is set
// in practice; resolution priority is editable, then directory, then
// virtual. Registry sources have no filesystem location in the workspace.
type sourceTable struct {
	Editable  string `toml:"editable"`
	Directory string `toml:"directory"`
	Virtual   string `toml:"virtual"`
	Registry  string `toml:"registry"`
}

func (s sourceTable) path() (string, bool) {
	for _, p := range []string{s.Editable, s.Directory, s.Virtual} {
		if p != "" {
			return p, true
		}
	}
	return "", false
}

type depRef struct {
	Name string `toml:"name"`
}

// ParseFile reads and parses the lock file at path.
// A missing file keeps fs.ErrNotExist in its error chain; other read
// failures are wrapped as plain I/O errors.
func ParseFile(path string, opts Options) (*model.DependencyGraph, []model.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s not found: %w", path, err)
		}
		return nil, nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(data, path, opts)
}

// Parse builds the workspace dependency graph from lock file contents.
// path is used only for error and warning messages.
//
// Fatal conditions (malformed TOML, missing or empty [manifest] membership)
// return a *ManifestError and no graph. Anomalies that leave usable data
// (duplicate members, unrecognized lock version, a member without a source
// path) are reported as warnings and processing continues.
func Parse(data []byte, path string, opts Options) (*model.DependencyGraph, []model.Warning, error) {
	var doc lockDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, nil, &ManifestError{Path: path, Detail: fmt.Sprintf("not valid TOML: %v", err)}
	}

	var warnings []model.Warning
	if doc.Version == nil || *doc.Version != SupportedLockVersion {
		got := "missing"
		if doc.Version != nil {
			got = fmt.Sprintf("%d", *doc.Version)
		}
		warnings = append(warnings, model.Warning{
			Code: model.WarnUnknownLockVersion,
			Message: fmt.Sprintf("uv.lock version %s is not recognized (supported: %d); results may be unreliable",
				got, SupportedLockVersion),
		})
	}

	if doc.Manifest == nil {
		return nil, nil, &ManifestError{Path: path, Detail: "no [manifest] section: is this a uv workspace?"}
	}

	members := make(map[string]struct{}, len(doc.Manifest.Members))
	var dups []string
	for _, m := range doc.Manifest.Members {
		if _, seen := members[m]; seen {
			dups = append(dups, m)
		}
		members[m] = struct{}{}
	}
	if len(dups) > 0 {
		warnings = append(warnings, model.Warning{
			Code:    model.WarnDuplicateMembers,
			Message: fmt.Sprintf("duplicate members in %s: %v", path, dups),
		})
	}
	if len(members) == 0 {
		return nil, nil, &ManifestError{Path: path, Detail: "no workspace members in [manifest]"}
	}

	g := &model.DependencyGraph{
		Packages: make(map[string]*model.WorkspacePackage),
		Forward:  make(map[string]map[string]struct{}),
		Reverse:  make(map[string]map[string]struct{}),
	}

	for _, pkg := range doc.Packages {
		if _, ok := members[pkg.Name]; !ok {
			continue // external dependency, not a workspace node
		}
		src, ok := pkg.Source.path()
		if !ok {
			warnings = append(warnings, model.Warning{
				Code:    model.WarnNoSourcePath,
				Message: fmt.Sprintf("package %q has no recognized source path, skipping", pkg.Name),
			})
			continue
		}
		g.Packages[pkg.Name] = &model.WorkspacePackage{
			Name:                 pkg.Name,
			SourcePath:           strings.TrimRight(src, "/"),
			Dependencies:         memberNames(pkg.Dependencies, members),
			OptionalDependencies: filterGroups(pkg.OptionalDependencies, members),
			DevDependencies:      filterGroups(pkg.DevDependencies, members),
		}
	}

	for name, pkg := range g.Packages {
		for _, dep := range pkg.Dependencies {
			addEdge(g.Forward, name, dep)
		}
		if opts.IncludeOptional {
			for _, group := range pkg.OptionalDependencies {
				for _, dep := range group {
					addEdge(g.Forward, name, dep)
				}
			}
		}
		if opts.IncludeDev {
			for _, group := range pkg.DevDependencies {
				for _, dep := range group {
					addEdge(g.Forward, name, dep)
				}
			}
		}
	}

	// Reverse is the exact transpose of forward.
	for name, deps := range g.Forward {
		for dep := range deps {
			addEdge(g.Reverse, dep, name)
		}
	}

	return g, warnings, nil
}

// memberNames keeps only dependency names that are workspace members,
// preserving declaration order.
func memberNames(deps []depRef, members map[string]struct{}) []string {
	var names []string
	for _, d := range deps {
		if _, ok := members[d.Name]; ok {
			names = append(names, d.Name)
		}
	}
	return names
}

// filterGroups filters each dependency group down to workspace members,
// dropping groups left empty.
func filterGroups(groups map[string][]depRef, members map[string]struct{}) map[string][]string {
	if len(groups) == 0 {
		return nil
	}
	filtered := make(map[string][]string)
	for group, deps := range groups {
		if names := memberNames(deps, members); len(names) > 0 {
			filtered[group] = names
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func addEdge(adj map[string]map[string]struct{}, from, to string) {
	if adj[from] == nil {
		adj[from] = make(map[string]struct{})
	}
	adj[from][to] = struct{}{}
}
