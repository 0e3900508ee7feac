package main

import "parnass/internal/cli"

func main() {
	cli.Execute()
}
