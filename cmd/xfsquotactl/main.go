package main

import (
	"os"

	"k8s.io/component-base/cli"

	"github.com/terminus-io/xfsquotactl/cmd/xfsquotactl/cmd"
)

func main() {
	code := cli.Run(cmd.NewRootCommand())
	os.Exit(code)
}
