// Command contractcheck statically confirms that the process core's
// external-contract types still satisfy the interfaces the rest of the
// kernel depends on structurally (no shared import, so a signature drift
// would otherwise only surface as a runtime type-assertion failure deep
// in scall.Dispatch). It loads the fd, fs, console and spt packages with
// golang.org/x/tools/go/packages and checks, via go/types.Implements,
// that *fs.File (through its fd.Fdops_i adapter) and *console.Console
// both implement fd.Fdops_i, and that the fs adapter also implements
// spt.FileOps for the mmap path.
//
// This substitutes for golang.org/x/tools/go/pointer: a full SSA
// points-to analysis is built for answering alias queries across an
// entire program, which is far more machinery than "does this package
// still implement interface X" needs. go/packages plus go/types is the
// right-sized tool for that question.
package main

import (
	"fmt"
	"go/types"
	"log"
	"os"

	"golang.org/x/tools/go/packages"
)

type check struct {
	pkgPath  string
	typeName string
	pointer  bool
	ifacePkg string
	ifaceName string
}

var checks = []check{
	{pkgPath: "fs", typeName: "File", pointer: true, ifacePkg: "spt", ifaceName: "FileOps"},
	{pkgPath: "fs", typeName: "fileFd", pointer: true, ifacePkg: "fd", ifaceName: "Fdops_i"},
	{pkgPath: "fs", typeName: "fileFd", pointer: true, ifacePkg: "spt", ifaceName: "FileOps"},
	{pkgPath: "console", typeName: "Console", pointer: true, ifacePkg: "fd", ifaceName: "Fdops_i"},
}

func main() {
	cfg := &packages.Config{
		Mode: packages.NeedTypes | packages.NeedTypesInfo | packages.NeedDeps | packages.NeedImports | packages.NeedName,
	}
	var patterns []string
	seen := map[string]bool{}
	for _, c := range checks {
		if !seen[c.pkgPath] {
			patterns = append(patterns, c.pkgPath)
			seen[c.pkgPath] = true
		}
		if !seen[c.ifacePkg] {
			patterns = append(patterns, c.ifacePkg)
			seen[c.ifacePkg] = true
		}
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		log.Fatalf("loading packages: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	byPath := make(map[string]*packages.Package)
	for _, p := range pkgs {
		byPath[p.PkgPath] = p
		if p.Name != "" {
			byPath[p.Name] = p
		}
	}

	failed := false
	for _, c := range checks {
		tpkg := byPath[c.pkgPath]
		ipkg := byPath[c.ifacePkg]
		if tpkg == nil || ipkg == nil {
			log.Fatalf("could not load %s or %s", c.pkgPath, c.ifacePkg)
		}

		obj := tpkg.Types.Scope().Lookup(c.typeName)
		if obj == nil {
			log.Fatalf("%s: type %s not found", c.pkgPath, c.typeName)
		}
		ifaceObj := ipkg.Types.Scope().Lookup(c.ifaceName)
		if ifaceObj == nil {
			log.Fatalf("%s: interface %s not found", c.ifacePkg, c.ifaceName)
		}
		iface, ok := ifaceObj.Type().Underlying().(*types.Interface)
		if !ok {
			log.Fatalf("%s.%s is not an interface", c.ifacePkg, c.ifaceName)
		}

		var candidate types.Type = obj.Type()
		if c.pointer {
			candidate = types.NewPointer(candidate)
		}
		if !types.Implements(candidate, iface) {
			fmt.Printf("FAIL: %s does not implement %s.%s\n", describe(c), c.ifacePkg, c.ifaceName)
			failed = true
			continue
		}
		fmt.Printf("OK: %s implements %s.%s\n", describe(c), c.ifacePkg, c.ifaceName)
	}
	if failed {
		os.Exit(1)
	}
}

func describe(c check) string {
	if c.pointer {
		return fmt.Sprintf("*%s.%s", c.pkgPath, c.typeName)
	}
	return fmt.Sprintf("%s.%s", c.pkgPath, c.typeName)
}
