package main

import "github.com/mikey/mail-trust-filter/internal/cli"

func main() {
	cli.Execute()
}
