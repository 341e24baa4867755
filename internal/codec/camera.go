// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const noCamerasMarker = "No cameras available!"

// cameraAvailable asks rpicam-vid for attached cameras.
func cameraAvailable(ctx context.Context, rpicamPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// #nosec G204 -- binary path comes from operator config
	out, err := exec.CommandContext(ctx, rpicamPath, "--list-cameras").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: list cameras: %v", ErrHardwareUnavailable, err)
	}
	if strings.Contains(string(out), noCamerasMarker) {
		return ErrHardwareUnavailable
	}
	return nil
}
