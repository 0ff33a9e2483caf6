// Package device describes the compute devices a program is built for.
//
// A Device is an immutable identity plus the capabilities a compiler backend
// consults. Identity is the stable ID; two Device values with the same ID are
// the same device.
package device

import (
	"fmt"
	"slices"
)

// ID is the stable identity of a device.
type ID string

// Device is a compute device.
type Device struct {
	id         ID
	name       string
	extensions []string
}

// New creates a device. Extensions are copied.
func New(id ID, name string, extensions ...string) *Device {
	if name == "" {
		name = string(id)
	}
	return &Device{
		id:         id,
		name:       name,
		extensions: slices.Clone(extensions),
	}
}

// ID returns the device identity.
func (d *Device) ID() ID { return d.id }

// Name returns the human-readable device name.
func (d *Device) Name() string { return d.name }

// Extensions returns a copy of the device's extension list.
func (d *Device) Extensions() []string { return slices.Clone(d.extensions) }

// HasExtension reports whether the device supports ext.
func (d *Device) HasExtension(ext string) bool {
	return slices.Contains(d.extensions, ext)
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	if d.name == string(d.id) {
		return string(d.id)
	}
	return fmt.Sprintf("%s (%s)", d.id, d.name)
}

// IndexOf returns the position of the device with the given id in devs, or -1.
func IndexOf(devs []*Device, id ID) int {
	return slices.IndexFunc(devs, func(d *Device) bool { return d.id == id })
}

// Contains reports whether devs holds a device with the given id.
func Contains(devs []*Device, id ID) bool {
	return IndexOf(devs, id) >= 0
}

// Dedup returns devs with later duplicates (by ID) removed, preserving order.
func Dedup(devs []*Device) []*Device {
	out := make([]*Device, 0, len(devs))
	for _, d := range devs {
		if !Contains(out, d.id) {
			out = append(out, d)
		}
	}
	return out
}

// IDs returns the identities of devs in order.
func IDs(devs []*Device) []ID {
	ids := make([]ID, len(devs))
	for i, d := range devs {
		ids[i] = d.id
	}
	return ids
}
