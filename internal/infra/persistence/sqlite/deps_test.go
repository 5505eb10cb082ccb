package sqlite

import (
	"go/build"
	"strings"
	"testing"
)

func TestStoreLayering(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	allowed := []string{"labcore/pkg/domain", "labcore/internal/infra/persistence/memory"}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "labcore/") {
			continue
		}
		ok := false
		for _, a := range allowed {
			ok = ok || imp == a
		}
		if !ok {
			t.Errorf("sqlite store imports %s; it may only build on the domain and the memory store", imp)
		}
	}
}
