// Package com provides ownership management for reference-counted COM
// objects returned by the DXGI/D3D11 subsystem.
//
// The foreign API surface is modeled as narrow Go interfaces rooted at
// Unknown; the Windows backend implements them over raw vtable calls
// and tests implement them as mocks. Every fallible foreign call
// reports an HRESULT, which this package passes through unchanged.
package com

import (
	"fmt"

	"github.com/go-ole/go-ole"
)

// GUID identifies a COM interface (IID).
type GUID = ole.GUID

// NewGUID parses a GUID of the form "{XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}".
func NewGUID(s string) *GUID {
	return ole.NewGUID(s)
}

// HRESULT is a COM status code. It implements error so foreign failures
// can propagate verbatim; callers compare against the exported constants
// (errors.Is works, HRESULT is comparable).
type HRESULT uint32

// Common COM status codes.
const (
	SOK           HRESULT = 0x00000000
	ENoInterface  HRESULT = 0x80004002
	EPointer      HRESULT = 0x80004003
	EFail         HRESULT = 0x80004005
	EAccessDenied HRESULT = 0x80070005
	EOutOfMemory  HRESULT = 0x8007000E
	EInvalidArg   HRESULT = 0x80070057
)

// DXGI status codes surfaced by duplication and enumeration calls.
const (
	DXGIErrInvalidCall        HRESULT = 0x887A0001
	DXGIErrNotFound           HRESULT = 0x887A0002
	DXGIErrUnsupported        HRESULT = 0x887A0004
	DXGIErrDeviceRemoved      HRESULT = 0x887A0005
	DXGIErrDeviceHung         HRESULT = 0x887A0006
	DXGIErrDeviceReset        HRESULT = 0x887A0007
	DXGIErrWasStillDrawing    HRESULT = 0x887A000A
	DXGIErrAccessLost         HRESULT = 0x887A0026
	DXGIErrWaitTimeout        HRESULT = 0x887A0027
	DXGIErrSessionDisconnected HRESULT = 0x887A0028
)

// Failed reports whether hr is a failure code (high bit set).
func (hr HRESULT) Failed() bool {
	return int32(hr) < 0
}

func (hr HRESULT) Error() string {
	switch hr {
	case ENoInterface:
		return "E_NOINTERFACE"
	case EPointer:
		return "E_POINTER"
	case EFail:
		return "E_FAIL"
	case EAccessDenied:
		return "E_ACCESSDENIED"
	case EOutOfMemory:
		return "E_OUTOFMEMORY"
	case EInvalidArg:
		return "E_INVALIDARG"
	case DXGIErrInvalidCall:
		return "DXGI_ERROR_INVALID_CALL"
	case DXGIErrNotFound:
		return "DXGI_ERROR_NOT_FOUND"
	case DXGIErrUnsupported:
		return "DXGI_ERROR_UNSUPPORTED"
	case DXGIErrDeviceRemoved:
		return "DXGI_ERROR_DEVICE_REMOVED"
	case DXGIErrDeviceHung:
		return "DXGI_ERROR_DEVICE_HUNG"
	case DXGIErrDeviceReset:
		return "DXGI_ERROR_DEVICE_RESET"
	case DXGIErrWasStillDrawing:
		return "DXGI_ERROR_WAS_STILL_DRAWING"
	case DXGIErrAccessLost:
		return "DXGI_ERROR_ACCESS_LOST"
	case DXGIErrWaitTimeout:
		return "DXGI_ERROR_WAIT_TIMEOUT"
	case DXGIErrSessionDisconnected:
		return "DXGI_ERROR_SESSION_DISCONNECTED"
	}
	return fmt.Sprintf("HRESULT 0x%08X", uint32(hr))
}

// Unknown is the capability root of every wrapped foreign object.
//
// QueryInterface asks the object whether it also supports the interface
// named by iid; on success the returned Unknown refers to the same
// underlying object with one additional foreign reference, which the
// caller now owns. Release decrements the foreign reference count by
// one and returns the new count (COM convention; the value is only a
// hint and is zero-meaningful in tests).
type Unknown interface {
	QueryInterface(iid *GUID) (Unknown, HRESULT)
	Release() uint32
}
