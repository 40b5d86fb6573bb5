package main

import (
	"os"

	"github.com/wdfday/personalfinance-fe-sub001/cmd/periodrecon/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	os.Exit(cmd.Execute())
}
