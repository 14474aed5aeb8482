package main

import "github.com/zeyxx/CYNIC-sub012/cmd"

func main() {
	cmd.Execute()
}
