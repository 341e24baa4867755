// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"strconv"
)

// hlsArgs is the segmenting tail shared by every variant.
func hlsArgs(o Options, segmentPattern, playlist string) []string {
	return []string{
		"-f", "hls",
		"-hls_time", strconv.Itoa(o.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(o.ListSize),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", segmentPattern,
		playlist,
	}
}

// x264Args encodes raw frames for the variants that do not receive H.264.
func x264Args(p Params) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-b:v", strconv.Itoa(p.Bitrate),
		"-g", strconv.Itoa(p.Framerate * 2),
	}
}

func testSourceArgs(o Options, p Params, segmentPattern, playlist string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-re",
		"-f", "lavfi",
		"-i", "testsrc=size=1280x720:rate=" + strconv.Itoa(p.Framerate),
	}
	args = append(args, x264Args(p)...)
	return append(args, hlsArgs(o, segmentPattern, playlist)...)
}

func desktopArgs(goos string, o Options, p Params, segmentPattern, playlist string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-framerate", strconv.Itoa(p.Framerate),
	}
	switch goos {
	case "darwin":
		device := o.Device
		if device == "" {
			device = "0"
		}
		args = append(args, "-f", "avfoundation", "-i", device)
	default:
		device := o.Device
		if device == "" {
			device = "/dev/video0"
		}
		args = append(args, "-f", "v4l2", "-i", device)
	}
	args = append(args, x264Args(p)...)
	return append(args, hlsArgs(o, segmentPattern, playlist)...)
}

// rpicamArgs produces raw H.264 on stdout with a keyframe every two seconds.
func rpicamArgs(o Options, p Params) []string {
	return []string{
		"-t", "0",
		"--width", strconv.Itoa(o.Width),
		"--height", strconv.Itoa(o.Height),
		"--framerate", strconv.Itoa(p.Framerate),
		"--intra", strconv.Itoa(p.Framerate * 2),
		"--codec", "h264",
		"--profile", "high",
		"--bitrate", strconv.Itoa(p.Bitrate),
		"-o", "-",
	}
}

func segmenterArgs(o Options, segmentPattern, playlist string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-i", "-",
		"-c:v", "copy",
	}
	return append(args, hlsArgs(o, segmentPattern, playlist)...)
}
