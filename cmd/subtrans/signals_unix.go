//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals 触发取消：在途请求随 ctx 取消，不写出部分结果。
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
