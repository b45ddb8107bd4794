package main

import "github.com/riseselfesteem/convosync/cmd/convoctl/cmd"

func main() {
	cmd.Execute()
}
