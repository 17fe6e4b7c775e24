package dxgi

import "github.com/dupcap/dupcap/internal/com"

// OutputEnumerator walks the outputs attached to one adapter. It is
// lazy (each Next marshals exactly one probe into the subsystem, so a
// fresh enumeration observes hot-plug changes), finite, and
// non-restartable; call EnumerateOutputs again to re-enumerate.
type OutputEnumerator struct {
	adapter Adapter
	index   uint32
	done    bool
}

// EnumerateOutputs returns an enumerator over the adapter's outputs.
// The enumerator borrows the adapter; the caller keeps ownership.
func EnumerateOutputs(adapter Adapter) *OutputEnumerator {
	return &OutputEnumerator{adapter: adapter}
}

// Next produces the next output attached to the desktop. The sequence
// ends at the first DXGI_ERROR_NOT_FOUND probe; any other failure is
// treated the same way, since "not found" is the documented terminator
// and enumeration-boundary statuses are not surfaced as errors.
// Detached outputs are released and skipped without being counted.
func (e *OutputEnumerator) Next() (com.Handle[Output], bool) {
	for !e.done {
		out, hr := e.adapter.EnumOutputs(e.index)
		e.index++
		if hr.Failed() {
			e.done = true
			break
		}

		h := com.TakeOwnership(out)
		var desc OutputDesc
		if hr := out.GetDesc(&desc); hr.Failed() || desc.AttachedToDesktop == 0 {
			h.Close()
			continue
		}
		return h, true
	}
	return com.Handle[Output]{}, false
}
