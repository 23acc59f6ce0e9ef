// The main package for the matchday executable.
package main

import (
	"github.com/fixturelab/matchday-crawler/cmd"
)

func main() {
	cmd.Execute()
}
