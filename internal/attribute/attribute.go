// Package attribute maps changed file paths to the workspace packages that
// own them, and decides when a change invalidates the whole workspace.
package attribute

import (
	"regexp"
	"sort"
	"strings"

	"difftrace/internal/model"
)

// DefaultRootTriggers returns the built-in root-level files whose change
// forces testing all packages.
func DefaultRootTriggers() map[string]struct{} {
	return map[string]struct{}{
		"pyproject.toml": {},
		"uv.lock":        {},
	}
}

// DefaultDirTriggers returns the built-in directory prefixes whose change
// forces testing all packages.
func DefaultDirTriggers() map[string]struct{} {
	return map[string]struct{}{
		".github/": {},
	}
}

// ParseTriggers merges caller-supplied patterns into the default trigger
// sets. A pattern ending in "/" is a directory prefix trigger; anything
// else is a root trigger (exact filename or glob).
func ParseTriggers(extra []string) (root, dir map[string]struct{}) {
	root = DefaultRootTriggers()
	dir = DefaultDirTriggers()
	for _, pattern := range extra {
		if strings.HasSuffix(pattern, "/") {
			dir[pattern] = struct{}{}
		} else {
			root[pattern] = struct{}{}
		}
	}
	return root, dir
}

// SortPackages orders packages longest source path first, so a nested
// package wins over an ancestor sharing the path prefix. Equal lengths
// fall back to lexical path order so results are deterministic.
func SortPackages(packages map[string]*model.WorkspacePackage) []*model.WorkspacePackage {
	sorted := make([]*model.WorkspacePackage, 0, len(packages))
	for _, p := range packages {
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i].SourcePath) != len(sorted[j].SourcePath) {
			return len(sorted[i].SourcePath) > len(sorted[j].SourcePath)
		}
		return sorted[i].SourcePath < sorted[j].SourcePath
	})
	return sorted
}

// Owner returns the name of the package whose source directory contains
// path. The packages slice must be in SortPackages order. Matching
// requires the directory boundary to fall on a path separator, so
// packages/api never claims packages/api-extra/foo.py. Virtual-root
// packages own nothing.
func Owner(path string, sorted []*model.WorkspacePackage) (string, bool) {
	for _, p := range sorted {
		if p.IsVirtualRoot() {
			continue
		}
		if strings.HasPrefix(path, p.SourcePath+"/") {
			return p.Name, true
		}
	}
	return "", false
}

// MapFiles attributes workspace-relative changed paths to packages and
// reports whether any path hit a global trigger.
//
// Per path, in order: exact root trigger, glob root trigger, directory
// prefix trigger, then longest-prefix package match. A trigger hit marks
// testAll and excludes that path from package attribution, but the loop
// continues so the remaining paths still attribute normally. Paths owned
// by no package are silently unattributed.
//
// A nil trigger set selects the defaults; a non-nil empty set disables
// that kind of trigger entirely.
func MapFiles(changed []string, packages map[string]*model.WorkspacePackage, rootTriggers, dirTriggers map[string]struct{}) (map[string]struct{}, bool) {
	if rootTriggers == nil {
		rootTriggers = DefaultRootTriggers()
	}
	if dirTriggers == nil {
		dirTriggers = DefaultDirTriggers()
	}

	exact := make(map[string]struct{}, len(rootTriggers))
	var patterns []string
	for t := range rootTriggers {
		if strings.ContainsAny(t, "*?[") {
			patterns = append(patterns, t)
		} else {
			exact[t] = struct{}{}
		}
	}
	sort.Strings(patterns)
	globs := compileGlobs(patterns)

	sorted := SortPackages(packages)

	directlyChanged := make(map[string]struct{})
	testAll := false

	for _, path := range changed {
		if _, ok := exact[path]; ok {
			testAll = true
			continue
		}
		if matchesGlob(globs, path) {
			testAll = true
			continue
		}
		if matchesDirPrefix(dirTriggers, path) {
			testAll = true
			continue
		}
		if name, ok := Owner(path, sorted); ok {
			directlyChanged[name] = struct{}{}
		}
	}

	return directlyChanged, testAll
}

// compileGlobs translates wildcard patterns into anchored regexps.
// A malformed pattern cannot match anything and is dropped.
func compileGlobs(patterns []string) []*regexp.Regexp {
	var globs []*regexp.Regexp
	for _, p := range patterns {
		if re, err := globRegexp(p); err == nil {
			globs = append(globs, re)
		}
	}
	return globs
}

// globRegexp translates a shell wildcard pattern into an anchored regular
// expression. The whole changed path is matched as a flat string: * spans
// any run of characters including path separators, ? matches one
// character, and [...] is a character class with ! negating it. An
// unterminated class matches a literal "[".
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++ // a leading ] is a class member, not the terminator
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

func matchesGlob(globs []*regexp.Regexp, path string) bool {
	for _, re := range globs {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func matchesDirPrefix(dirTriggers map[string]struct{}, path string) bool {
	for prefix := range dirTriggers {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
