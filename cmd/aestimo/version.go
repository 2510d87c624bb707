package main

import (
	"fmt"

	"github.com/ternarybob/aestimo/internal/common"
)

// runVersion prints the build version and exits.
func runVersion() {
	fmt.Printf("Aestimo %s\n", common.GetFullVersion())
}
