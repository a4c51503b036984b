// Command covidmap builds the animated municipality case map.
//
// Usage:
//
//	covidmap run                 # reconcile the sources and render the GIF
//	covidmap reconcile           # only write the reconciled grid file
//	covidmap render              # render from an existing grid file
//	covidmap run --refresh-cases=false --env-file .env.local
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
