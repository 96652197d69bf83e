package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"difftrace/internal/model"
)

// runAction implements the `difftrace action` subcommand: it runs the
// normal pipeline and emits GitHub Actions step outputs, appended to the
// file named by $GITHUB_OUTPUT (stdout when unset).
func runAction(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("difftrace action", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	var rootTrigger, exclude, ignorePattern stringList

	fs.StringVar(&opts.base, "base", "origin/main", "base ref to diff against")
	fs.StringVar(&opts.lockFile, "lock-file", "uv.lock", "path to uv.lock file")
	fs.BoolVar(&opts.noDev, "no-dev", false, "exclude dev dependencies from the dependency graph")
	fs.BoolVar(&opts.noOptional, "no-optional", false, "exclude optional dependencies from the dependency graph")
	fs.Var(&rootTrigger, "root-trigger", "extra pattern that triggers test_all; append / for a directory prefix (repeatable)")
	fs.Var(&exclude, "exclude", "exclude a package from the affected set (repeatable)")
	fs.Var(&ignorePattern, "ignore", "gitignore-style pattern for changed files to disregard (repeatable)")
	fs.IntVar(&opts.githubPR, "github-pr", 0, "read changed files from this GitHub pull request instead of local git")
	fs.StringVar(&opts.githubRepo, "github-repo", "", "OWNER/NAME repository for -github-pr")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable verbose output to stderr")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: difftrace action [flags]

Run change detection and write GitHub Actions step outputs:

  affected      JSON list of affected package names
  matrix        {"package": [...]} for strategy.matrix fromJson
  has_affected  "true" when the affected list is non-empty
  test_all      "true" when a global trigger fired

Outputs are appended to the file named by $GITHUB_OUTPUT, or written to
stdout when it is unset.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts.rootTriggers = rootTrigger
	opts.excludes = exclude
	opts.ignores = ignorePattern

	result, _, err := pipeline(&opts, stderr)
	if err != nil {
		return err
	}

	lines, err := actionOutputs(result)
	if err != nil {
		return err
	}

	out := stdout
	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening GITHUB_OUTPUT: %w", err)
		}
		defer f.Close()
		out = f
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("writing outputs: %w", err)
		}
	}
	return nil
}

// actionOutputs derives the Action step output lines from a result.
func actionOutputs(result *model.Result) ([]string, error) {
	affected, err := json.Marshal(result.Affected)
	if err != nil {
		return nil, err
	}
	matrix, err := json.Marshal(map[string][]string{"package": result.Affected})
	if err != nil {
		return nil, err
	}
	hasAffected := strconv.FormatBool(len(result.Affected) > 0)
	return []string{
		"affected=" + string(affected),
		"matrix=" + string(matrix),
		"has_affected=" + hasAffected,
		"test_all=" + strconv.FormatBool(result.TestAll),
	}, nil
}
