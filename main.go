package main

import "github.com/papapumpkin/alka/cmd"

func main() {
	cmd.Execute()
}
