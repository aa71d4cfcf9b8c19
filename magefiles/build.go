//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every GLSL shader in assets/shaders to SPIR-V next to its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Tidies the module and builds the engine binary into bin/.
func (Build) Engine() error {
	if err := goModTidy(); err != nil {
		return err
	}
	return goCmd("build", "-o", "bin/maple", ".")
}

// Runs the unit tests of every package.
func Test() error {
	return goCmd("test", "./...")
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"comp", "vert", "frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, "*."+ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shaders found in %s", shaderDir)
	}
	for _, src := range sources {
		if err := glslc(src); err != nil {
			return err
		}
	}
	return nil
}
