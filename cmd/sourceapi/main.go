// Package main is the sourceapi executable.
package main

import "github.com/notaspider/comick-source-api/cmd"

func main() {
	cmd.Execute()
}
