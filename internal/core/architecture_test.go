package core

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestCoreDependsOnPortsOnly ensures the engine reaches storage, transport
// and blobs through domain ports and never through concrete adapters.
func TestCoreDependsOnPortsOnly(t *testing.T) {
	forbidden := []string{
		"entitysync/internal/infra",
		"entitysync/internal/adapters",
		"entitysync/internal/blob",
	}
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "entitysync/internal/core", "entitysync/pkg/domain")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var violations []string
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			for _, prefix := range forbidden {
				if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
					violations = append(violations, pkg.PkgPath+": "+importPath)
				}
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden import %s", v)
	}
}
