//go:build mage

package main

import (
	"fmt"
)

// Compiles the shaders and runs the testbed with config/engine.toml.
func Run() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	return goCmd("run", ".", "-config", "config/engine.toml")
}
