package main

import "sales-reconciliation/internal/cli"

func main() {
	cli.Execute()
}
