package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"difftrace/internal/model"
)

func TestActionOutputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result model.Result
		want   []string
	}{
		{
			name: "typical change",
			result: model.Result{
				DirectlyChanged: []string{"shared"},
				Affected:        []string{"api", "shared"},
			},
			want: []string{
				`affected=["api","shared"]`,
				`matrix={"package":["api","shared"]}`,
				"has_affected=true",
				"test_all=false",
			},
		},
		{
			name:   "no changes",
			result: model.Result{DirectlyChanged: []string{}, Affected: []string{}},
			want: []string{
				"affected=[]",
				`matrix={"package":[]}`,
				"has_affected=false",
				"test_all=false",
			},
		},
		{
			name: "test all",
			result: model.Result{
				DirectlyChanged: []string{},
				Affected:        []string{"api", "shared", "worker"},
				TestAll:         true,
			},
			want: []string{
				`affected=["api","shared","worker"]`,
				`matrix={"package":["api","shared","worker"]}`,
				"has_affected=true",
				"test_all=true",
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := actionOutputs(&tt.result)
			if err != nil {
				t.Fatalf("actionOutputs: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("outputs:\n got %v\nwant %v", got, tt.want)
			}
		})
	}
}

// Uses t.Setenv, so no t.Parallel.
func TestRunActionWritesGithubOutputFile(t *testing.T) {
	dir := createWorkspace(t, map[string]string{"packages/shared/lib.py": "x = 2\n"})

	outPath := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", outPath)

	var stdout, stderr bytes.Buffer
	err := runAction([]string{"--lock-file", filepath.Join(dir, "uv.lock"), "--base", "HEAD~1"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runAction: %v\nstderr: %s", err, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("outputs should go to the file, not stdout: %q", stdout.String())
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{
		`affected=["api","shared","worker"]`,
		`matrix={"package":["api","shared","worker"]}`,
		"has_affected=true",
		"test_all=false",
	} {
		if !strings.Contains(content, want+"\n") {
			t.Errorf("missing line %q in:\n%s", want, content)
		}
	}
}

// Uses t.Setenv, so no t.Parallel.
func TestRunActionStdoutFallback(t *testing.T) {
	dir := createWorkspace(t, nil)

	t.Setenv("GITHUB_OUTPUT", "")

	var stdout, stderr bytes.Buffer
	err := runAction([]string{"--lock-file", filepath.Join(dir, "uv.lock"), "--base", "HEAD"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runAction: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "affected=[]") || !strings.Contains(out, "has_affected=false") {
		t.Errorf("stdout outputs:\n%s", out)
	}
}

func TestRunActionAppends(t *testing.T) {
	dir := createWorkspace(t, nil)

	outPath := filepath.Join(t.TempDir(), "output")
	if err := os.WriteFile(outPath, []byte("earlier=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITHUB_OUTPUT", outPath)

	var stdout, stderr bytes.Buffer
	err := runAction([]string{"--lock-file", filepath.Join(dir, "uv.lock"), "--base", "HEAD"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("runAction: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "earlier=1\n") {
		t.Errorf("existing outputs should be preserved:\n%s", data)
	}
}
