//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
)

// the glfw bindings are built with cgo
var goEnv = map[string]string{"CGO_ENABLED": "1"}

// goCmd runs the go tool and streams its output.
func goCmd(args ...string) error {
	fmt.Printf("Executing: go %s\n", strings.Join(args, " "))
	if err := sh.RunWithV(goEnv, mg.GoCmd(), args...); err != nil {
		return fmt.Errorf("error executing go %s: %w", args[0], err)
	}
	return nil
}

// glslc compiles src to src.spv unless the output is newer than the source.
func glslc(src string) error {
	out := src + ".spv"
	stale, err := target.Path(out, src)
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	fmt.Printf("Compiling %s\n", src)
	if err := sh.RunV("glslc", "--target-env=vulkan1.2", src, "-o", out); err != nil {
		return fmt.Errorf("error compiling %s: %w", src, err)
	}
	return nil
}

func goModTidy() error {
	if err := sh.Run(mg.GoCmd(), "mod", "tidy"); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	return nil
}
