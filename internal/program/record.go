package program

import (
	"fmt"
	"sync"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/device"
)

// BuildStatus is the outcome of the most recent build, compile or link on
// one device.
type BuildStatus int

const (
	StatusNone BuildStatus = iota
	StatusError
	StatusSuccess
)

// Numeric API values of BuildStatus.
var buildStatusValues = map[BuildStatus]int32{
	StatusNone:    -1,
	StatusError:   -2,
	StatusSuccess: 0,
}

var buildStatusNames = map[BuildStatus]string{
	StatusNone:    "NONE",
	StatusError:   "ERROR",
	StatusSuccess: "SUCCESS",
}

// String implements fmt.Stringer.
func (s BuildStatus) String() string {
	if name, ok := buildStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BuildStatus(%d)", int(s))
}

// Value returns the numeric API value.
func (s BuildStatus) Value() int32 {
	return buildStatusValues[s]
}

// ParseBuildStatus is the inverse of BuildStatus.String.
func ParseBuildStatus(s string) (BuildStatus, error) {
	for st, name := range buildStatusNames {
		if name == s {
			return st, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown build status %q", s)
}

// buildState is the observable state of one device's record.
type buildState struct {
	status     BuildStatus
	binaryType backend.BinaryType
	log        string
	options    string
	artifact   *backend.Artifact
}

// executable reports whether the record holds a successful executable.
func (s buildState) executable() bool {
	return s.status == StatusSuccess && s.binaryType == backend.BinaryExecutable && s.artifact != nil
}

// record is the per-device build record.
//
// op serializes build, compile and link on the device. state is guarded by
// the owning Program's mu so queries never wait on a running backend call.
type record struct {
	device *device.Device
	op     sync.Mutex
	state  buildState
}

func newRecord(dev *device.Device) *record {
	return &record{device: dev}
}
