package main

import (
	"fmt"

	"periph.io/x/host/v3"
)

// initPeriph brings up the periph.io driver registry, the same first
// call cmd/core's own initPeriph makes before touching any pin or bus.
func initPeriph() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("uxc: periph init: %w", err)
	}
	return nil
}
