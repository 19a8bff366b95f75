//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

var Default = Build

// Build compiles the drmerge executable into ./bin.
func Build() error {
	mg.Deps(BuildMerger)
	fmt.Println("Compilation finished")
	return nil
}

func BuildMerger() error {
	fmt.Println("Building drmerge executable...")
	return goCommand("build", "-o", "./bin/drmerge", "./drmerge")
}

// Test runs the package tests, HDF5 and sqlite3 need cgo.
func Test() error {
	return goCommand("test", "./...")
}

func goCommand(args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", os.Getenv("CGO_LDFLAGS")),
		fmt.Sprintf("CGO_CFLAGS=%s", os.Getenv("CGO_CFLAGS")))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
