// difftrace prints the workspace packages affected by a git diff in a
// uv-managed Python monorepo, so CI can test only what changed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"difftrace/internal/attribute"
	"difftrace/internal/graph"
	"difftrace/internal/lockfile"
	"difftrace/internal/model"
	"difftrace/internal/render"
	"difftrace/internal/vcs"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stringList collects values of a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// options holds everything the pipeline needs; the action subcommand
// shares it with the main command.
type options struct {
	base         string
	lockFile     string
	noDev        bool
	noOptional   bool
	directOnly   bool
	detailed     bool
	rootTriggers []string
	excludes     []string
	ignores      []string
	githubPR     int
	githubRepo   string
	verbose      bool
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "action" {
		return runAction(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("difftrace", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts        options
		jsonOutput  bool
		names       bool
		paths       bool
		showVersion bool
	)
	var rootTrigger, exclude, ignorePattern stringList

	fs.StringVar(&opts.base, "base", "origin/main", "base ref to diff against")
	fs.BoolVar(&jsonOutput, "json", false, "output results as JSON")
	fs.BoolVar(&names, "names", false, "output affected package names, one per line")
	fs.BoolVar(&paths, "paths", false, "output affected package source paths, one per line")
	fs.StringVar(&opts.lockFile, "lock-file", "uv.lock", "path to uv.lock file")
	fs.BoolVar(&opts.noDev, "no-dev", false, "exclude dev dependencies from the dependency graph")
	fs.BoolVar(&opts.noOptional, "no-optional", false, "exclude optional dependencies from the dependency graph")
	fs.BoolVar(&opts.directOnly, "direct-only", false, "only output directly changed packages, skip transitive deps")
	fs.BoolVar(&opts.detailed, "detailed", false, "show changed files and their package mapping")
	fs.Var(&rootTrigger, "root-trigger", "extra pattern that triggers test_all; append / for a directory prefix (repeatable)")
	fs.Var(&exclude, "exclude", "exclude a package from the affected set (repeatable)")
	fs.Var(&ignorePattern, "ignore", "gitignore-style pattern for changed files to disregard (repeatable)")
	fs.IntVar(&opts.githubPR, "github-pr", 0, "read changed files from this GitHub pull request instead of local git")
	fs.StringVar(&opts.githubRepo, "github-repo", "", "OWNER/NAME repository for -github-pr")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable verbose output to stderr")
	fs.BoolVar(&opts.verbose, "v", false, "enable verbose output to stderr")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "difftrace %s\n", version)
		return nil
	}

	modes := 0
	for _, m := range []bool{jsonOutput, names, paths} {
		if m {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("-json, -names and -paths are mutually exclusive")
	}

	opts.rootTriggers = rootTrigger
	opts.excludes = exclude
	opts.ignores = ignorePattern

	result, g, err := pipeline(&opts, stderr)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return render.JSON(stdout, result)
	case names:
		render.Names(stdout, result)
	case paths:
		render.Paths(stdout, result, g.Packages)
	default:
		render.Human(stdout, result, opts.detailed)
	}
	return nil
}

// pipeline runs the full analysis: parse lock file, collect changed files,
// attribute them to packages, traverse reverse dependencies, and compose
// the final result.
func pipeline(opts *options, stderr io.Writer) (*model.Result, *model.DependencyGraph, error) {
	ctx := context.Background()

	lockPath, err := filepath.Abs(opts.lockFile)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving %s: %w", opts.lockFile, err)
	}
	workspaceRoot := filepath.Dir(lockPath)

	g, warnings, err := lockfile.ParseFile(lockPath, lockfile.Options{
		IncludeDev:      !opts.noDev,
		IncludeOptional: !opts.noOptional,
	})
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		_, _ = fmt.Fprintf(stderr, "warning: %s\n", w.Message)
	}
	debugf(opts.verbose, stderr, "parsed %d workspace members from %s", len(g.Packages), lockPath)

	workspaceFiles, err := changedFiles(ctx, opts, workspaceRoot, stderr)
	if err != nil {
		return nil, nil, err
	}
	debugf(opts.verbose, stderr, "changed files (%d): %v", len(workspaceFiles), workspaceFiles)

	if len(opts.ignores) > 0 {
		workspaceFiles = filterIgnored(workspaceFiles, opts.ignores)
	}

	rootTriggers, dirTriggers := attribute.ParseTriggers(opts.rootTriggers)
	directlyChanged, testAll := attribute.MapFiles(workspaceFiles, g.Packages, rootTriggers, dirTriggers)

	// Virtual-root packages have no code or tests of their own and never
	// appear in the final answer.
	virtualRoots := g.VirtualRoots()

	var affected map[string]struct{}
	switch {
	case opts.directOnly:
		affected = subtract(directlyChanged, virtualRoots)
	case testAll:
		all := make(map[string]struct{}, len(g.Packages))
		for name := range g.Packages {
			all[name] = struct{}{}
		}
		affected = subtract(all, virtualRoots)
	default:
		affected = subtract(graph.Affected(directlyChanged, g.Reverse), virtualRoots)
	}

	for _, name := range opts.excludes {
		delete(directlyChanged, name)
		delete(affected, name)
	}

	result := &model.Result{
		DirectlyChanged: sortedNames(directlyChanged),
		Affected:        sortedNames(affected),
		TestAll:         testAll,
	}

	if opts.detailed {
		sorted := attribute.SortPackages(g.Packages)
		mapping := make(map[string]string, len(workspaceFiles))
		for _, f := range workspaceFiles {
			name, _ := attribute.Owner(f, sorted)
			mapping[f] = name
		}
		result.FileMapping = mapping
	}

	return result, g, nil
}

// changedFiles collects the workspace-relative changed-file list, from the
// GitHub API when a pull request is given, otherwise from local git.
func changedFiles(ctx context.Context, opts *options, workspaceRoot string, stderr io.Writer) ([]string, error) {
	if opts.githubPR > 0 {
		owner, repo, err := vcs.SplitRepo(opts.githubRepo)
		if err != nil {
			if opts.githubRepo == "" {
				return nil, fmt.Errorf("-github-repo is required with -github-pr")
			}
			return nil, err
		}
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			debugf(opts.verbose, stderr, "GITHUB_TOKEN not set, using unauthenticated API access")
		}
		client := vcs.NewGitHubClient(ctx, token)
		files, err := vcs.PullRequestFiles(ctx, client, owner, repo, opts.githubPR)
		if err != nil {
			return nil, err
		}
		// API paths are repo-root-relative. Rebase onto the workspace when
		// a local checkout is present; without one, assume the workspace is
		// the repository root.
		if gitRoot, err := vcs.GitRoot(ctx, workspaceRoot); err == nil {
			return vcs.Relativize(files, gitRoot, workspaceRoot), nil
		}
		return files, nil
	}

	gitRoot, err := vcs.GitRoot(ctx, workspaceRoot)
	if err != nil {
		return nil, err
	}
	debugf(opts.verbose, stderr, "git root: %s", gitRoot)

	files, err := vcs.ChangedFiles(ctx, opts.base, gitRoot)
	if err != nil {
		return nil, err
	}
	return vcs.Relativize(files, gitRoot, workspaceRoot), nil
}

// filterIgnored drops changed files matching the given gitignore-style
// patterns. Compilation cannot fail; unparseable lines are skipped by the
// matcher.
func filterIgnored(files []string, patterns []string) []string {
	gi := ignore.CompileIgnoreLines(patterns...)
	var kept []string
	for _, f := range files {
		if !gi.MatchesPath(f) {
			kept = append(kept, f)
		}
	}
	return kept
}

// sortedNames returns the set as a sorted slice, never nil so empty sets
// serialize as [] rather than null.
func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func subtract(set, remove map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for name := range set {
		if _, ok := remove[name]; !ok {
			out[name] = struct{}{}
		}
	}
	return out
}

func debugf(verbose bool, stderr io.Writer, format string, args ...any) {
	if verbose {
		_, _ = fmt.Fprintf(stderr, format+"\n", args...)
	}
}
