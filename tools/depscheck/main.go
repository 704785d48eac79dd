// Command depscheck fails when a core package imports the node runtime or
// a concrete transport. Core packages must stay usable from tests and the
// soak harness with nothing but an in-memory link.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "espnow-arena/node"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

var corePackages = []string{
	"./internal/authority/...",
	"./internal/engine/...",
	"./internal/mapgen/...",
	"./internal/net/...",
	"./internal/reach/...",
	"./internal/snapshot/...",
}

var forbidden = []string{
	modulePath + "/internal/app",
	modulePath + "/internal/node",
	modulePath + "/internal/diag",
	modulePath + "/internal/display",
	modulePath + "/internal/link/udp",
	modulePath + "/internal/link/ws",
}

func main() {
	args := append([]string{"list", "-json"}, corePackages...)
	cmd := exec.Command("go", args...)
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	violations, err := check(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

// check decodes a stream of `go list -json` objects and returns every
// import of a forbidden package, sorted.
func check(r io.Reader) ([]string, error) {
	decoder := json.NewDecoder(r)
	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode package info: %w", err)
		}
		for _, imp := range pkg.Imports {
			for _, bad := range forbidden {
				if imp == bad || strings.HasPrefix(imp, bad+"/") {
					violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
				}
			}
		}
	}
	sort.Strings(violations)
	return violations, nil
}
