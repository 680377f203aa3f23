package localcopy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildPlanTrailingSlash(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(tmp, "dest")
	plan, err := BuildPlan([][2]string{{src + "/", dest}})
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, n := range plan.Nodes {
		if n.RelPath == "a.txt" {
			found = true
			if n.Dest != filepath.Join(dest, "a.txt") {
				t.Errorf("a.txt dest = %s, want %s", n.Dest, filepath.Join(dest, "a.txt"))
			}
		}
	}
	if !found {
		t.Errorf("a.txt missing from plan: %+v", plan.Nodes)
	}
}

func TestBuildPlanNestsUnderDest(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(tmp, "dest")
	plan, err := BuildPlan([][2]string{{src, dest}})
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(dest, "src", "a.txt")
	var got string
	for _, n := range plan.Nodes {
		if filepath.Base(n.Dest) == "a.txt" {
			got = n.Dest
		}
	}
	if got != want {
		t.Errorf("a.txt dest = %s, want %s", got, want)
	}
}

func TestExecutorRunCopiesAndSkipsUnchanged(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dest := filepath.Join(tmp, "dest")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "hello"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := BuildPlan([][2]string{{src + "/", dest}})
	if err != nil {
		t.Fatal(err)
	}

	exec := &Executor{Opts: &Options{PreservePerms: true, PreserveTimes: true}}
	summary, err := exec.Run(plan)
	if err != nil {
		t.Fatal(err)
	}
	if summary.FilesCopied != 1 {
		t.Fatalf("FilesCopied = %d, want 1", summary.FilesCopied)
	}
	got, err := os.ReadFile(filepath.Join(dest, "hello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Fatalf("content = %q, want %q", got, "world")
	}

	// Second run against an unchanged destination should skip.
	plan2, err := BuildPlan([][2]string{{src + "/", dest}})
	if err != nil {
		t.Fatal(err)
	}
	summary2, err := exec.Run(plan2)
	if err != nil {
		t.Fatal(err)
	}
	if summary2.FilesCopied != 0 || summary2.FilesSkipped != 1 {
		t.Fatalf("second run summary = %+v, want 0 copied, 1 skipped", summary2)
	}
}

func TestExecutorDryRunMakesNoChanges(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dest := filepath.Join(tmp, "dest")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "hello"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := BuildPlan([][2]string{{src + "/", dest}})
	if err != nil {
		t.Fatal(err)
	}
	exec := &Executor{Opts: &Options{DryRun: true}}
	if _, err := exec.Run(plan); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("dry run created %s", dest)
	}
}
