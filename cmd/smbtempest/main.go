package main

import "smbtempest/cmd"

func main() {
	cmd.Execute()
}
