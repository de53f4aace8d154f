package main

import "github.com/mcoot/grimoire/internal/cli"

func main() {
	cli.Execute()
}
