package attribute

import (
	"testing"

	"difftrace/internal/model"
)

func pkgs(entries map[string]string) map[string]*model.WorkspacePackage {
	m := make(map[string]*model.WorkspacePackage, len(entries))
	for name, src := range entries {
		m[name] = &model.WorkspacePackage{Name: name, SourcePath: src}
	}
	return m
}

func names(set map[string]struct{}) []string {
	var out []string
	for name := range set {
		out = append(out, name)
	}
	return out
}

func TestMapFilesSimple(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{
		"api":    "packages/api",
		"shared": "packages/shared",
	})
	direct, testAll := MapFiles([]string{"packages/shared/src/lib.py"}, packages, nil, nil)
	if testAll {
		t.Error("test_all should be false")
	}
	if len(direct) != 1 {
		t.Fatalf("directly changed: %v", names(direct))
	}
	if _, ok := direct["shared"]; !ok {
		t.Errorf("expected shared, got %v", names(direct))
	}
}

func TestMapFilesLongestPrefixWins(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{
		"api":     "packages/api",
		"api-sub": "packages/api/sub",
	})
	direct, _ := MapFiles([]string{"packages/api/sub/main.py"}, packages, nil, nil)
	if _, ok := direct["api-sub"]; !ok {
		t.Errorf("nested package should win: %v", names(direct))
	}
	if _, ok := direct["api"]; ok {
		t.Errorf("ancestor package should not match: %v", names(direct))
	}
}

func TestMapFilesSeparatorBoundary(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{
		"api":       "packages/api",
		"api-extra": "packages/api-extra",
	})
	direct, _ := MapFiles([]string{"packages/api-extra/foo.py"}, packages, nil, nil)
	if _, ok := direct["api"]; ok {
		t.Error("packages/api must not claim packages/api-extra/foo.py")
	}
	if _, ok := direct["api-extra"]; !ok {
		t.Errorf("expected api-extra, got %v", names(direct))
	}
}

func TestMapFilesVirtualRootNeverMatches(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{
		"root": ".",
		"api":  "packages/api",
	})
	direct, testAll := MapFiles([]string{"docs/readme.md", "packages/api/x.py"}, packages, nil, nil)
	if testAll {
		t.Error("test_all should be false")
	}
	if _, ok := direct["root"]; ok {
		t.Error("virtual root must never be directly changed")
	}
	if _, ok := direct["api"]; !ok {
		t.Errorf("expected api, got %v", names(direct))
	}
}

func TestMapFilesUnattributedSilently(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	direct, testAll := MapFiles([]string{"scripts/deploy.sh"}, packages, nil, nil)
	if len(direct) != 0 || testAll {
		t.Errorf("unattributed path should be dropped: direct=%v testAll=%v", names(direct), testAll)
	}
}

func TestMapFilesRootTriggerExact(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	direct, testAll := MapFiles([]string{"uv.lock"}, packages, nil, nil)
	if !testAll {
		t.Error("uv.lock should trigger test_all")
	}
	if len(direct) != 0 {
		t.Errorf("trigger path must not attribute to a package: %v", names(direct))
	}
}

func TestMapFilesRootTriggerGlob(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	root := map[string]struct{}{"*.cfg": {}, "Docker?ile": {}, "ma[kx]e.sh": {}, "ci-[!0-9]*": {}}

	tests := []struct {
		path    string
		testAll bool
	}{
		{"setup.cfg", true},
		{"Dockerfile", true},
		{"make.sh", true},
		{"setup.py", false},
		// * spans directory separators, like shell fnmatch.
		{"packages/api/setup.cfg", true},
		{"tools/nested/deep/build.cfg", true},
		{"packages/api/setup.py", false},
		{"ci-lint.yml", true},
		{"ci-2.yml", false},
	}
	for _, tt := range tests {
		_, testAll := MapFiles([]string{tt.path}, packages, root, map[string]struct{}{})
		if testAll != tt.testAll {
			t.Errorf("%s: test_all = %v, want %v", tt.path, testAll, tt.testAll)
		}
	}
}

func TestMapFilesDirTrigger(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	direct, testAll := MapFiles([]string{".github/workflows/ci.yml"}, packages, nil, nil)
	if !testAll {
		t.Error(".github/ should trigger test_all")
	}
	if len(direct) != 0 {
		t.Errorf("direct: %v", names(direct))
	}
}

// A trigger hit is global even when the path also lies inside a package's
// source directory, and it never counts as a direct change for that
// package.
func TestTriggerInsidePackagePath(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	root := map[string]struct{}{"packages/api/special.toml": {}}
	direct, testAll := MapFiles([]string{"packages/api/special.toml"}, packages, root, map[string]struct{}{})
	if !testAll {
		t.Error("trigger should beat package attribution")
	}
	if len(direct) != 0 {
		t.Errorf("trigger path attributed anyway: %v", names(direct))
	}
}

func TestMapFilesContinuesAfterTrigger(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	direct, testAll := MapFiles([]string{"uv.lock", "packages/api/x.py"}, packages, nil, nil)
	if !testAll {
		t.Error("test_all should stay true")
	}
	if _, ok := direct["api"]; !ok {
		t.Error("attribution must continue for paths after a trigger hit")
	}
}

func TestMapFilesEmptyOverrideDisablesTriggers(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	// Non-nil empty sets are an explicit opt-out of the defaults.
	_, testAll := MapFiles([]string{"uv.lock", ".github/ci.yml"}, packages, map[string]struct{}{}, map[string]struct{}{})
	if testAll {
		t.Error("empty trigger sets should disable test_all")
	}
}

func TestMapFilesNoChanges(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{"api": "packages/api"})
	direct, testAll := MapFiles(nil, packages, nil, nil)
	if len(direct) != 0 || testAll {
		t.Errorf("no changes: direct=%v testAll=%v", names(direct), testAll)
	}
}

func TestParseTriggersDefaults(t *testing.T) {
	t.Parallel()
	root, dir := ParseTriggers(nil)
	for _, want := range []string{"pyproject.toml", "uv.lock"} {
		if _, ok := root[want]; !ok {
			t.Errorf("default root triggers missing %q", want)
		}
	}
	if _, ok := dir[".github/"]; !ok {
		t.Error("default dir triggers missing .github/")
	}
}

func TestParseTriggersMerge(t *testing.T) {
	t.Parallel()
	root, dir := ParseTriggers([]string{"Dockerfile", "docker/", "*.mk"})
	if _, ok := root["Dockerfile"]; !ok {
		t.Error("Dockerfile should be a root trigger")
	}
	if _, ok := root["*.mk"]; !ok {
		t.Error("*.mk should be a root trigger")
	}
	if _, ok := dir["docker/"]; !ok {
		t.Error("docker/ should be a dir trigger")
	}
	// Built-ins are merged with, not replaced by, the extras.
	if _, ok := root["uv.lock"]; !ok {
		t.Error("built-in root triggers should survive merging")
	}
	if _, ok := dir[".github/"]; !ok {
		t.Error("built-in dir triggers should survive merging")
	}
}

func TestOwnerDeterministicOrder(t *testing.T) {
	t.Parallel()
	packages := pkgs(map[string]string{
		"a": "packages/aa",
		"b": "packages/bb",
	})
	sorted := SortPackages(packages)
	// Equal lengths: ties break on path order.
	if sorted[0].SourcePath != "packages/aa" {
		t.Errorf("sort order: %s first", sorted[0].SourcePath)
	}
}
