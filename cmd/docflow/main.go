package main

import "github.com/xear-health/docflow/cmd/docflow/cmd"

func main() {
	cmd.Execute()
}
