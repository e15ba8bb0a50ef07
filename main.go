package main

import "github.com/jmehdipour/cablesync/cmd"

func main() {
	cmd.Execute()
}
