// Package descriptor loads per-name target descriptors for named subdomains.
//
// A descriptor for name is looked up in a directory with this precedence:
//
//  1. <name>.json  (JSON)
//  2. <name>.yaml  (YAML)
//  3. <name>.yml   (YAML)
//  4. <name>       (key=value lines)
//
// The first file that exists wins; later candidates are never consulted even
// when the winner fails to parse.
package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/koltyakov/servgate/internal/domain"
	"github.com/koltyakov/servgate/internal/netutil"
)

// Format identifies the serialization of a descriptor file.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatKeyValue Format = "kv"
)

type candidate struct {
	suffix string
	format Format
}

var candidates = []candidate{
	{".json", FormatJSON},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
	{"", FormatKeyValue},
}

// Port accepts either a JSON number or a string.
type Port string

func (p *Port) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*p = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*p = Port(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port: %w", err)
	}
	*p = Port(n.String())
	return nil
}

// Descriptor describes an upstream for a named subdomain.
type Descriptor struct {
	IP       string `json:"ip,omitempty"`
	Port     Port   `json:"port,omitempty"`
	HTTPS    bool   `json:"https"`
	Hostname string `json:"hostname,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Destination builds the upstream base URL. An explicit URL wins; otherwise
// the scheme follows HTTPS, the host is Hostname or IP, and Port is appended
// when set.
func (d Descriptor) Destination() (*url.URL, error) {
	if raw := strings.TrimSpace(d.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: bad url %q", domain.ErrInvalidDescriptor, raw)
		}
		return u, nil
	}
	host := strings.TrimSpace(d.Hostname)
	if host == "" {
		host = strings.TrimSpace(d.IP)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: no url, hostname or ip", domain.ErrInvalidDescriptor)
	}
	scheme := "http"
	if d.HTTPS {
		scheme = "https"
	}
	if port := domain.TruncatePort(string(d.Port)); port != "" {
		if !netutil.IsDigits(port) {
			return nil, fmt.Errorf("%w: bad port %q", domain.ErrInvalidDescriptor, d.Port)
		}
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return &url.URL{Scheme: scheme, Host: host}, nil
}

// ParseError reports a descriptor file that exists but cannot be decoded.
type ParseError struct {
	Name   string
	Path   string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("descriptor %s: parse %s: %v", e.Name, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Loader resolves descriptors from a directory.
type Loader struct {
	Dir string
}

// NewLoader returns a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load finds and decodes the descriptor for name. It returns an error
// matching [domain.ErrDescriptorNotFound] when no candidate file exists and a
// [*ParseError] when the winning file is malformed.
func (l *Loader) Load(name string) (Descriptor, error) {
	if !netutil.IsDNSLabel(name) {
		return Descriptor{}, fmt.Errorf("%w: invalid name %q", domain.ErrDescriptorNotFound, name)
	}
	for _, c := range candidates {
		path := filepath.Join(l.Dir, name+c.suffix)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Descriptor{}, fmt.Errorf("descriptor %s: %w", name, err)
		}
		if info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Descriptor{}, fmt.Errorf("descriptor %s: %w", name, err)
		}
		d, err := Decode(data, c.format)
		if err != nil {
			return Descriptor{}, &ParseError{Name: name, Path: path, Format: c.format, Err: err}
		}
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", domain.ErrDescriptorNotFound, name)
}

// Decode parses data in the given format.
func Decode(data []byte, format Format) (Descriptor, error) {
	var d Descriptor
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &d); err != nil {
			return Descriptor{}, err
		}
	case FormatYAML:
		// sigs.k8s.io/yaml converts to JSON first, so json tags and the
		// flexible Port decoder apply to YAML too.
		if err := yaml.Unmarshal(data, &d); err != nil {
			return Descriptor{}, err
		}
	case FormatKeyValue:
		return decodeKeyValue(data)
	default:
		return Descriptor{}, fmt.Errorf("unknown format %q", format)
	}
	return d, nil
}

func decodeKeyValue(data []byte) (Descriptor, error) {
	var d Descriptor
	normalized := strings.ReplaceAll(string(data), "\r\n", "\n")
	for i, line := range strings.Split(normalized, "\n") {
		key, value, ok := parseAssignment(line)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "ip":
			d.IP = value
		case "port":
			d.Port = Port(value)
		case "hostname":
			d.Hostname = value
		case "url":
			d.URL = value
		case "https":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Descriptor{}, fmt.Errorf("line %d: https: %w", i+1, err)
			}
			d.HTTPS = b
		}
	}
	return d, nil
}

func parseAssignment(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	key, value, ok := strings.Cut(trimmed, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
			(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}
