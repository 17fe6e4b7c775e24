package dxgi

import "github.com/dupcap/dupcap/internal/com"

// Duplicate opens a desktop duplication session on output, consuming
// the output handle. The session is created against the shared device;
// the returned DuplicatedOutput keeps borrowing the device and context
// cells for staging and copies.
func Duplicate(device *com.Shared[Device], context *com.Shared[DeviceContext],
	output *com.Handle[Output]) (*DuplicatedOutput, error) {
	out1, err := com.QueryAs[Output1](output, IIDIDXGIOutput1)
	if err != nil {
		return nil, err
	}

	var dup com.Handle[OutputDuplication]
	var dupHR com.HRESULT
	device.With(func(dev Device) {
		session, hr := out1.Get().DuplicateOutput(dev)
		if hr.Failed() {
			dupHR = hr
			return
		}
		dup = com.TakeOwnership(session)
	})
	if dupHR.Failed() {
		out1.Close()
		return nil, dupHR
	}

	return NewDuplicatedOutput(device, context, &out1, &dup), nil
}
