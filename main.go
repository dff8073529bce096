// Package main is the entry point for the nsprofile command
package main

import "github.com/mrcode/nightscout-profiles/cmd"

func main() {
	cmd.Execute()
}
