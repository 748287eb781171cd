package main

import "github.com/forPelevin/subtle/internal/cli"

func main() {
	cli.Main()
}
