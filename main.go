package main

import "bookload/cmd"

func main() {
	cmd.Execute()
}
