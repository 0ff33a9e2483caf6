package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mr-tron/base58"

	"github.com/roach88/clprog/internal/binfmt"
	"github.com/roach88/clprog/internal/program"
)

// DeviceReport is one device's build record as printed by the CLI.
type DeviceReport struct {
	Device     string   `json:"device"`
	Status     string   `json:"status"`
	BinaryType string   `json:"binary_type"`
	Options    string   `json:"options"`
	Log        string   `json:"log,omitempty"`
	Size       int      `json:"size"`
	Digest     string   `json:"digest,omitempty"` // base58 blake3 of the binary
	Kernels    []string `json:"kernels,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ProgramReport is the result of build, compile, link and info.
type ProgramReport struct {
	Op      string         `json:"op"`
	Program string         `json:"program,omitempty"`
	Cached  bool           `json:"cached,omitempty"`
	Devices []DeviceReport `json:"devices"`
	Kernels []string       `json:"kernels,omitempty"`
	Written []string       `json:"written,omitempty"`
}

// Succeeded counts devices whose status is SUCCESS.
func (r ProgramReport) Succeeded() int {
	n := 0
	for _, d := range r.Devices {
		if d.Status == program.StatusSuccess.String() {
			n++
		}
	}
	return n
}

// String renders the report for text output.
func (r ProgramReport) String() string {
	var b strings.Builder
	mark := "✓"
	if r.Succeeded() < len(r.Devices) {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s %s", mark, r.Op)
	if r.Program != "" {
		fmt.Fprintf(&b, " %s", r.Program)
	}
	fmt.Fprintf(&b, ": %d/%d device(s) succeeded", r.Succeeded(), len(r.Devices))
	if r.Cached {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n")

	for _, d := range r.Devices {
		mark := "✓"
		if d.Status != program.StatusSuccess.String() {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s %s %s %s", mark, d.Device, d.Status, d.BinaryType)
		if d.Size > 0 {
			fmt.Fprintf(&b, " %s %s", humanize.Bytes(uint64(d.Size)), d.Digest)
		}
		if d.Options != "" {
			fmt.Fprintf(&b, " options=%q", d.Options)
		}
		if len(d.Kernels) > 0 {
			fmt.Fprintf(&b, " kernels=%s", strings.Join(d.Kernels, ","))
		}
		b.WriteString("\n")
		if d.Error != "" {
			fmt.Fprintf(&b, "      %s\n", d.Error)
		}
		for _, line := range strings.Split(strings.TrimRight(d.Log, "\n"), "\n") {
			if line != "" {
				fmt.Fprintf(&b, "      %s\n", line)
			}
		}
	}
	if len(r.Kernels) > 0 {
		fmt.Fprintf(&b, "Kernels: %s\n", strings.Join(r.Kernels, ", "))
	}
	for _, path := range r.Written {
		fmt.Fprintf(&b, "Wrote %s\n", path)
	}
	return strings.TrimRight(b.String(), "\n")
}

// reportProgram queries every device record of p.
func reportProgram(op string, p *program.Program) (ProgramReport, error) {
	r := ProgramReport{Op: op, Program: p.ID()}
	for _, id := range p.Devices() {
		status, err := p.Status(id)
		if err != nil {
			return r, err
		}
		binType, err := p.BinaryType(id)
		if err != nil {
			return r, err
		}
		options, err := p.Options(id)
		if err != nil {
			return r, err
		}
		log, err := p.Log(id)
		if err != nil {
			return r, err
		}
		data, err := p.Binary(id)
		if err != nil {
			return r, err
		}
		d := DeviceReport{
			Device:     string(id),
			Status:     status.String(),
			BinaryType: binType.String(),
			Options:    options,
			Log:        log,
			Size:       len(data),
		}
		if data != nil {
			d.Digest = digestString(data)
		}
		r.Devices = append(r.Devices, d)
	}
	if names, err := p.KernelNames(); err == nil && names != "" {
		r.Kernels = strings.Split(names, ";")
	}
	return r, nil
}

// digestString is the base58 form of a binary's blake3 digest.
func digestString(data []byte) string {
	sum := binfmt.Digest(data)
	return base58.Encode(sum[:])
}
