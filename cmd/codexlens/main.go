package main

import "github.com/vanpelt/codexlens/internal/cmd"

func main() {
	cmd.Execute()
}
