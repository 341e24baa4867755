// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"os"
	"runtime"
	"strings"
)

// Platform selects a pipeline variant.
type Platform string

const (
	PlatformTest        Platform = "test"
	PlatformDesktop     Platform = "desktop"
	PlatformRaspberryPi Platform = "raspberrypi"
	PlatformUnknown     Platform = "unknown"
)

// deviceTreeModel identifies Raspberry Pi boards.
var deviceTreeModel = "/sys/firmware/devicetree/base/model"

// Detect resolves the configured platform. "auto" inspects the host once;
// any explicit value is taken as is.
func Detect(requested string) Platform {
	switch Platform(requested) {
	case PlatformTest, PlatformDesktop, PlatformRaspberryPi:
		return Platform(requested)
	}
	return detectHost(runtime.GOOS)
}

func detectHost(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformDesktop
	case "linux":
		if isRaspberryPi() {
			return PlatformRaspberryPi
		}
		return PlatformDesktop
	default:
		return PlatformUnknown
	}
}

func isRaspberryPi() bool {
	data, err := os.ReadFile(deviceTreeModel)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "raspberry pi")
}
