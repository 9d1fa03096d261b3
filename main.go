package main

import "wp-fleet-manager/cmd"

func main() {
	cmd.Execute()
}
