package identity

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// sidecarKeys is the recognized key set for the edp.info sidecar, in the
// order WriteSidecar emits them.
var sidecarKeys = []string{"name", "version", "os", "arch", "kind", "compiler", "glibc", "build_date"}

// ParseSidecar parses the key=value edp.info grammar: one "key = value"
// per line, whitespace-tolerant, unknown keys ignored, missing keys retain
// defaults. Malformed input (a non-parseable build_date) is an error, since
// a malformed sidecar aborts the enclosing operation per the spec.
func ParseSidecar(r io.Reader) (Properties, error) {
	p := Properties{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		switch strings.ToLower(key) {
		case "name":
			p.Name = value
		case "version":
			p.Version = value
		case "os":
			p.OS = OS(value)
		case "arch":
			p.Arch = Arch(value)
		case "kind":
			p.Kind = Kind(value)
		case "compiler":
			p.Compiler = Compiler(value)
		case "glibc":
			p.Glibc = value
		case "build_date":
			if value == "" {
				continue
			}
			t, err := time.Parse(buildDateLayout, value)
			if err != nil {
				return Properties{}, fmt.Errorf("edp.info: malformed build_date %q: %w", value, err)
			}
			p.BuildDate = t
		default:
			// unknown keys ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return Properties{}, fmt.Errorf("edp.info: %w", err)
	}
	if p.BuildDate.IsZero() {
		p.BuildDate = epochUnknown
	}
	return p, nil
}

// WriteSidecar writes every recognized key unconditionally, in a fixed
// order, regardless of whether the value is empty.
func WriteSidecar(w io.Writer, p Properties) error {
	values := map[string]string{
		"name":       p.Name,
		"version":    p.Version,
		"os":         string(p.OS),
		"arch":       string(p.Arch),
		"kind":       string(p.Kind),
		"compiler":   string(p.Compiler),
		"glibc":      p.Glibc,
		"build_date": p.BuildDate.UTC().Format(buildDateLayout),
	}
	for _, key := range sidecarKeys {
		if _, err := fmt.Fprintf(w, "%s = %s\n", key, values[key]); err != nil {
			return err
		}
	}
	return nil
}
