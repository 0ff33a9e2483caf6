package program

import (
	"context"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/device"
)

// Op names a coordinator operation.
type Op string

const (
	OpBuild   Op = "build"
	OpCompile Op = "compile"
	OpLink    Op = "link"
)

// Attempt is one per-device outcome of a build, compile or link.
type Attempt struct {
	ProgramID  string
	Device     device.ID
	Op         Op
	Status     BuildStatus
	BinaryType backend.BinaryType
	Options    string
	Log        string
}

// Journal persists build attempts. Implemented by *store.Store.
//
// A failing journal never fails the operation that produced the attempt.
type Journal interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}
