// Package connection implements the Jupyter connection descriptor: the
// five channel endpoints, signing key and scheme that make up the contract
// between a kernel launcher and the kernel process it starts.
package connection

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Transport is the wire transport used for all five channels.
type Transport string

const (
	TCP Transport = "tcp"
	IPC Transport = "ipc"
)

// SignatureScheme identifies the MAC algorithm used to sign messages.
type SignatureScheme string

// HMACSHA256 is the only signature scheme this module supports. Any other
// value read from a connection file is rejected by Load.
const HMACSHA256 SignatureScheme = "hmac-sha256"

// Info is the immutable connection descriptor: the on-disk contract
// between a kernel launcher and the kernel process (spec.md §3, §6).
type Info struct {
	Transport       Transport       `json:"transport"`
	IP              string          `json:"ip"`
	ShellPort       int             `json:"shell_port"`
	IOPubPort       int             `json:"iopub_port"`
	StdinPort       int             `json:"stdin_port"`
	ControlPort     int             `json:"control_port"`
	HBPort          int             `json:"hb_port"`
	Key             string          `json:"key"`
	SignatureScheme SignatureScheme `json:"signature_scheme"`
	KernelName      string          `json:"kernel_name,omitempty"`
}

// PortPeeker allocates n distinct, currently-unused port numbers on ip.
// Satisfied by runtimedir.PeekPorts; kept as a function type here so
// connection does not import runtimedir and callers can inject a fake.
type PortPeeker func(ip string, n int) ([]int, error)

// New allocates a fresh connection descriptor: five distinct ports via
// peek, and, unless unsigned is requested, a freshly generated signing key.
func New(ip string, transport Transport, peek PortPeeker, unsigned bool) (*Info, error) {
	ports, err := peek(ip, 5)
	if err != nil {
		return nil, errors.WithMessage(err, "connection.New: allocating ports")
	}
	if transport == TCP {
		seen := make(map[int]bool, len(ports))
		for _, p := range ports {
			if seen[p] {
				return nil, errors.Errorf("connection.New: port-peek returned duplicate port %d", p)
			}
			seen[p] = true
		}
	}
	info := &Info{
		Transport:       transport,
		IP:              ip,
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
		SignatureScheme: HMACSHA256,
	}
	if !unsigned {
		key, err := NewKey()
		if err != nil {
			return nil, errors.WithMessage(err, "connection.New: generating signing key")
		}
		info.Key = key
	}
	return info, nil
}

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewKey generates a 32-character alphanumeric signing key formatted as
// 8 chars + '-' + 24 chars, matching the shape emitted by the reference
// Jupyter client so existing front-ends accept it.
func NewKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.WithMessage(err, "reading random bytes")
	}
	out := make([]byte, 33)
	j := 0
	for i, c := range b {
		if i == 8 {
			out[j] = '-'
			j++
		}
		out[j] = keyAlphabet[int(c)%len(keyAlphabet)]
		j++
	}
	return string(out), nil
}

// Load reads and validates a connection file, rejecting unknown signature
// schemes (spec.md §4.A).
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "connection.Load: reading %q", path)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.WithMessagef(err, "connection.Load: parsing %q", path)
	}
	if info.SignatureScheme != "" && info.SignatureScheme != HMACSHA256 {
		return nil, errors.Errorf("connection.Load: unsupported signature_scheme %q in %q", info.SignatureScheme, path)
	}
	if info.SignatureScheme == "" {
		info.SignatureScheme = HMACSHA256
	}
	if err := info.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "connection.Load: %q", path)
	}
	return &info, nil
}

// Validate checks the distinct-ports invariant for tcp transports.
func (i *Info) Validate() error {
	if i.Transport != TCP && i.Transport != IPC {
		return errors.Errorf("unknown transport %q", i.Transport)
	}
	if i.Transport == TCP {
		ports := []int{i.ShellPort, i.IOPubPort, i.StdinPort, i.ControlPort, i.HBPort}
		seen := make(map[int]bool, len(ports))
		for _, p := range ports {
			if seen[p] {
				return errors.Errorf("ports must be distinct for tcp transport, got duplicate %d", p)
			}
			seen[p] = true
		}
	}
	return nil
}

// Save writes the descriptor as JSON to path (the connection file), as
// required before a kernel is spawned (spec.md §4.G).
func (i *Info) Save(path string) error {
	if err := i.Validate(); err != nil {
		return errors.WithMessage(err, "connection.Info.Save")
	}
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return errors.WithMessage(err, "connection.Info.Save: marshaling")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WithMessagef(err, "connection.Info.Save: writing %q", path)
	}
	return nil
}

func (i *Info) addr(port int) string {
	switch i.Transport {
	case IPC:
		return fmt.Sprintf("ipc://%s-%d", i.IP, port)
	default:
		return fmt.Sprintf("tcp://%s:%d", i.IP, port)
	}
}

// ShellAddr returns the dial/bind address for the shell channel.
func (i *Info) ShellAddr() string { return i.addr(i.ShellPort) }

// IOPubAddr returns the dial/bind address for the iopub channel.
func (i *Info) IOPubAddr() string { return i.addr(i.IOPubPort) }

// StdinAddr returns the dial/bind address for the stdin channel.
func (i *Info) StdinAddr() string { return i.addr(i.StdinPort) }

// ControlAddr returns the dial/bind address for the control channel.
func (i *Info) ControlAddr() string { return i.addr(i.ControlPort) }

// HBAddr returns the dial/bind address for the heartbeat channel.
func (i *Info) HBAddr() string { return i.addr(i.HBPort) }

// SigningKey returns the key as bytes, or nil when unsigned.
func (i *Info) SigningKey() []byte {
	if i.Key == "" {
		return nil
	}
	return []byte(i.Key)
}
