//go:build windows

package main

import "os"

// Windows 控制台只投递 Ctrl+C。
var shutdownSignals = []os.Signal{os.Interrupt}
