// Package main is the entry point of the sync API binary.
package main

import (
	"os"

	"github.com/qiuhuiming/titan-track/cmd/api/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
