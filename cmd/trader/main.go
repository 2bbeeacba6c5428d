package main

import "github.com/rustyeddy/tradeguard/internal/cli"

func main() {
	cli.Execute()
}
