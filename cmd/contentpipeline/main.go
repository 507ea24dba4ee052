package main

import "github.com/carelane/content-pipeline/cmd"

func main() {
	cmd.Execute()
}
