// Package render formats analysis results for the supported output modes.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"difftrace/internal/model"
)

// JSON writes the stable machine-readable result as a single object with
// a trailing newline.
func JSON(w io.Writer, result *model.Result) error {
	return json.NewEncoder(w).Encode(result)
}

// Names writes affected package names, one per line.
func Names(w io.Writer, result *model.Result) {
	for _, name := range result.Affected {
		fmt.Fprintln(w, name)
	}
}

// Paths writes affected package source paths, one per line.
func Paths(w io.Writer, result *model.Result, packages map[string]*model.WorkspacePackage) {
	for _, name := range result.Affected {
		if p, ok := packages[name]; ok {
			fmt.Fprintln(w, p.SourcePath)
		}
	}
}

// Human writes the default human-readable report. With detailed set, the
// per-file package mapping is included.
func Human(w io.Writer, result *model.Result, detailed bool) {
	if result.TestAll {
		fmt.Fprintln(w, "Root config changed, testing all packages")
		fmt.Fprintln(w)
	}

	if detailed {
		files := make([]string, 0, len(result.FileMapping))
		for f := range result.FileMapping {
			files = append(files, f)
		}
		sort.Strings(files)

		fmt.Fprintf(w, "Changed files (%d):\n", len(files))
		for _, f := range files {
			label := result.FileMapping[f]
			if label == "" {
				label = "(root/unmatched)"
			}
			fmt.Fprintf(w, "  %s  -> %s\n", f, label)
		}
		fmt.Fprintln(w)
	}

	if len(result.Affected) == 0 {
		fmt.Fprintln(w, "No affected packages.")
		return
	}

	direct := make(map[string]struct{}, len(result.DirectlyChanged))
	for _, name := range result.DirectlyChanged {
		direct[name] = struct{}{}
	}

	fmt.Fprintf(w, "Affected packages (%d):\n", len(result.Affected))
	for _, name := range result.Affected {
		marker := " (transitive)"
		if _, ok := direct[name]; ok {
			marker = " (direct)"
		}
		fmt.Fprintf(w, "  - %s%s\n", name, marker)
	}
}
