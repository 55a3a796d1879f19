package guards

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/MahdiBaghbani/curlaas-go"

// findRepoRoot walks up from the test directory to the go.mod.
func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found")
		}
		dir = parent
	}
}

// sourceLine is one line of a non-test Go file under internal/ or cmd/.
type sourceLine struct {
	rel  string // slash-separated, relative to the repo root
	num  int
	text string
}

func (l sourceLine) String() string {
	return l.rel + ":" + strconv.Itoa(l.num) + ": " + strings.TrimSpace(l.text)
}

// scanSources calls fn for every line of every non-test Go file in the
// module, skipping the underscore-prefixed directories the toolchain ignores.
func scanSources(t *testing.T, fn func(sourceLine)) {
	t.Helper()
	root := findRepoRoot(t)
	for _, top := range []string{"cmd", "internal"} {
		err := filepath.WalkDir(filepath.Join(root, top), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), "_") || d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			rel = filepath.ToSlash(rel)
			for i, line := range strings.Split(string(data), "\n") {
				fn(sourceLine{rel: rel, num: i + 1, text: line})
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			t.Fatalf("walk failed: %v", err)
		}
	}
}

func report(t *testing.T, msg string, violations []string) {
	t.Helper()
	if len(violations) > 0 {
		t.Fatalf("%s:\n%s", msg, strings.Join(violations, "\n"))
	}
}
