package main

import (
	"fmt"
	"os"

	"deviceguard/internal/app"
)

// @title           DeviceGuard API
// @version         1.0
// @description     Device-bound phone verification and access gating.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
