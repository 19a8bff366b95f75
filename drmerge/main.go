package main

import (
	"os"
)

var logger Logger

func init() {
	logger = NewLogger(os.Stdout, os.Stderr)
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
