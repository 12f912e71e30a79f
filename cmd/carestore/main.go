package main

import "github.com/carewise/carestore/internal/cli"

func main() {
	cli.Execute()
}
