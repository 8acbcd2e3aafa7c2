// Command geoctl builds, packs and queries geocoder indexes from the command
// line.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
