//go:build windows

package dxgi

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func init() {
	monitorFlags = systemMonitorFlags
}

func systemMonitorFlags(hmonitor uintptr) (uint32, bool) {
	var mi windows.MonitorInfo
	mi.CbSize = uint32(unsafe.Sizeof(mi))
	if err := windows.GetMonitorInfo(windows.HMONITOR(hmonitor), &mi); err != nil {
		return 0, false
	}
	return mi.Flags, true
}
