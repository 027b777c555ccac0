package endpoint

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ardnew/mpa/pkg"
)

// DefaultSizeBytes is the per-client FIFO kernel buffer size a descriptor
// carries when the publisher does not override it.
const DefaultSizeBytes = 1 << 20

// Descriptor is the `info` JSON document published by a server (spec §3,
// §6). The six named fields are mandatory; Vendor carries any additional
// keys a publisher wants to advertise (hardware descriptors, feature
// flags) without the core needing to know their shape.
type Descriptor struct {
	Name              string   `json:"name"`
	Location          string   `json:"location"`
	Type              string   `json:"type"`
	ServerName        string   `json:"server_name"`
	SizeBytes         int      `json:"size_bytes"`
	ServerPID         int      `json:"server_pid"`
	AvailableCommands []string `json:"available_commands,omitempty"`
	Vendor            map[string]any `json:"-"`
}

// MarshalJSON flattens Vendor's keys alongside the mandatory fields, so a
// reader with no knowledge of mpa sees one ordinary JSON object.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Vendor)+7)
	for k, v := range d.Vendor {
		out[k] = v
	}
	out["name"] = d.Name
	out["location"] = d.Location
	out["type"] = d.Type
	out["server_name"] = d.ServerName
	out["size_bytes"] = d.SizeBytes
	out["server_pid"] = d.ServerPID
	if len(d.AvailableCommands) > 0 {
		out["available_commands"] = d.AvailableCommands
	}
	return json.Marshal(out)
}

// UnmarshalJSON extracts the mandatory fields and collects everything else
// into Vendor.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type mandatory struct {
		Name              string   `json:"name"`
		Location          string   `json:"location"`
		Type              string   `json:"type"`
		ServerName        string   `json:"server_name"`
		SizeBytes         int      `json:"size_bytes"`
		ServerPID         int      `json:"server_pid"`
		AvailableCommands []string `json:"available_commands,omitempty"`
	}
	var m mandatory
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	d.Name = m.Name
	d.Location = m.Location
	d.Type = m.Type
	d.ServerName = m.ServerName
	d.SizeBytes = m.SizeBytes
	d.ServerPID = m.ServerPID
	d.AvailableCommands = m.AvailableCommands

	known := map[string]bool{
		"name": true, "location": true, "type": true, "server_name": true,
		"size_bytes": true, "server_pid": true, "available_commands": true,
	}
	d.Vendor = make(map[string]any)
	for k, v := range raw {
		if known[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		d.Vendor[k] = val
	}
	return nil
}

// WriteDescriptor serializes desc as JSON to dir/info.
func WriteDescriptor(dir string, desc *Descriptor) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return errors.Wrap(pkg.ErrFileIO, "marshal descriptor")
	}
	path := filepath.Join(dir, InfoFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "write descriptor %q: %v", path, err)
	}
	return nil
}

// ReadDescriptor parses dir/info into a Descriptor.
func ReadDescriptor(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, InfoFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(pkg.ErrInfoNotAvailable, "read descriptor %q: %v", path, err)
	}
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, errors.Wrapf(pkg.ErrInfoNotAvailable, "parse descriptor %q: %v", path, err)
	}
	return &desc, nil
}

// ServerAlive reports whether the process named by d.ServerPID is still
// running, via a signal-0 liveness probe. Used internally before a client
// sweeps a dead server's endpoint tree (spec §3 invariants, design notes
// §9 "must guard this with a PID-liveness check before unlinking").
func (d *Descriptor) ServerAlive() bool {
	return pidAlive(d.ServerPID)
}
