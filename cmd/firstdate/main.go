package main

import "github.com/firstdate-app/firstdate/internal/cli"

func main() {
	cli.Execute()
}
