package dxgi

// MONITORINFOF_PRIMARY: bit 0 of the monitor-info flags.
const monitorinfofPrimary = 0x1

// monitorFlags resolves the window manager's monitor-info flags for an
// HMONITOR. The real lookup is installed by monitor_windows.go; tests
// swap in their own. Kept as a narrow func var so primary-monitor
// detection stays testable independently of the graphics mocks.
var monitorFlags = func(hmonitor uintptr) (uint32, bool) {
	return 0, false
}
