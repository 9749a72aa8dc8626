package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	// KEY_PROG1 is what most accelerometer shake detectors on Linux emit.
	KEY_PROG1 = 148
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultIPCSocket  = "/tmp/shakegestured.sock"
	defaultHTTPAddr   = "127.0.0.1:3002"
	defaultSettingsFS = "/etc/shakegestured/settings.yaml"

	defaultCommandTimeoutMS = 5000
	defaultEventBuf         = 64
	defaultReportBuf        = 64

	// shutdownWait bounds how long the daemon waits for in-flight dispatches.
	shutdownWait = 3 * time.Second
)
