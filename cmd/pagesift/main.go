package main

import "github.com/pagesift/pagesift/cmd/pagesift/cmd"

func main() {
	cmd.Execute()
}
