package commands

import (
	"fmt"

	"surveyflow/internal/output"
)

// Version information, set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func RunVersion() {
	info := map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
	output.Print(info, func() {
		fmt.Printf("surveyflow version %s (commit %s, built %s)\n", Version, Commit, Date)
	})
}
