package main

import "github.com/ppiankov/typegate/internal/cli"

func main() {
	cli.Execute()
}
