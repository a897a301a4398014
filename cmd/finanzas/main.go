// Command finanzas turns Bancolombia and Nubank notification emails into
// categorized transactions.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
