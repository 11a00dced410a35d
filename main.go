package main

import "soltrader/internal/cli"

func main() {
	cli.Execute()
}
