package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"gpiblan/gpib"
)

// Bench describes the adapters and instruments of a test bench.
type Bench struct {
	Timeout    time.Duration
	BufferSize int
	Adapters   []AdapterSpec
}

// AdapterSpec is one GPIB-to-LAN adapter on the bench.
type AdapterSpec struct {
	Name    string
	Host    string
	Port    int
	Timeout time.Duration
	Devices []DeviceSpec
}

// DeviceSpec names one instrument on an adapter's bus.
type DeviceSpec struct {
	Name    string
	Address int
}

type benchFile struct {
	Timeout    string        `toml:"timeout"`
	BufferSize int           `toml:"buffer_size"`
	Adapters   []adapterFile `toml:"adapter"`
}

type adapterFile struct {
	Name    string       `toml:"name"`
	Host    string       `toml:"host"`
	Port    int          `toml:"port"`
	Timeout string       `toml:"timeout"`
	Devices []deviceFile `toml:"device"`
}

type deviceFile struct {
	Name    string `toml:"name"`
	Address int    `toml:"address"`
}

// LoadBench reads a TOML bench file.
func LoadBench(path string) (*Bench, error) {
	var raw benchFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load bench %s: %w", path, err)
	}
	b, err := buildBench(raw, meta)
	if err != nil {
		return nil, fmt.Errorf("bench %s: %w", path, err)
	}
	return b, nil
}

// ParseBench decodes a bench from TOML text.
func ParseBench(text string) (*Bench, error) {
	var raw benchFile
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse bench: %w", err)
	}
	return buildBench(raw, meta)
}

func buildBench(raw benchFile, meta toml.MetaData) (*Bench, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	b := &Bench{Timeout: DefaultTimeout, BufferSize: DefaultBufferSize}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return nil, fmt.Errorf("parse timeout: %w", err)
		}
		b.Timeout = d
	}
	if meta.IsDefined("buffer_size") {
		if raw.BufferSize < 1 {
			return nil, fmt.Errorf("buffer_size must be at least 1")
		}
		b.BufferSize = raw.BufferSize
	}

	if len(raw.Adapters) == 0 {
		return nil, fmt.Errorf("no [[adapter]] entries")
	}

	adapterNames := make(map[string]bool)
	deviceNames := make(map[string]string)
	for i, ra := range raw.Adapters {
		a := AdapterSpec{
			Name:    strings.TrimSpace(ra.Name),
			Host:    strings.TrimSpace(ra.Host),
			Port:    ra.Port,
			Timeout: b.Timeout,
		}
		if a.Name == "" {
			a.Name = fmt.Sprintf("adapter%d", i+1)
		}
		if adapterNames[a.Name] {
			return nil, fmt.Errorf("duplicate adapter name %q", a.Name)
		}
		adapterNames[a.Name] = true

		if a.Host == "" {
			return nil, fmt.Errorf("adapter %q: host is required", a.Name)
		}
		if a.Port == 0 {
			a.Port = DefaultPort
		}
		if a.Port < 1 || a.Port > 65535 {
			return nil, fmt.Errorf("adapter %q: port %d out of range", a.Name, a.Port)
		}
		if ra.Timeout != "" {
			d, err := time.ParseDuration(strings.TrimSpace(ra.Timeout))
			if err != nil {
				return nil, fmt.Errorf("adapter %q: parse timeout: %w", a.Name, err)
			}
			a.Timeout = d
		}

		for _, rd := range ra.Devices {
			name := strings.TrimSpace(rd.Name)
			if name == "" {
				return nil, fmt.Errorf("adapter %q: device at %d has no name", a.Name, rd.Address)
			}
			if owner, dup := deviceNames[name]; dup {
				return nil, fmt.Errorf("device %q defined on both %q and %q", name, owner, a.Name)
			}
			if err := gpib.CheckAddress(rd.Address); err != nil {
				return nil, fmt.Errorf("adapter %q: device %q: %w", a.Name, name, err)
			}
			deviceNames[name] = a.Name
			a.Devices = append(a.Devices, DeviceSpec{Name: name, Address: rd.Address})
		}
		b.Adapters = append(b.Adapters, a)
	}
	return b, nil
}

// FindDevice returns the adapter and device entry for a device name.
func (b *Bench) FindDevice(name string) (AdapterSpec, DeviceSpec, bool) {
	for _, a := range b.Adapters {
		for _, d := range a.Devices {
			if d.Name == name {
				return a, d, true
			}
		}
	}
	return AdapterSpec{}, DeviceSpec{}, false
}

// Adapter returns the adapter entry with the given name.
func (b *Bench) Adapter(name string) (AdapterSpec, bool) {
	for _, a := range b.Adapters {
		if a.Name == name {
			return a, true
		}
	}
	return AdapterSpec{}, false
}
