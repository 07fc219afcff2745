package identity

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// buildDateLayout is the ISO-8601, second-precision layout used in every
// textual form of a build date.
const buildDateLayout = "2006-01-02T15:04:05Z07:00"

// oneLineRe parses the textual one-line form:
//
//	<name>/<version> (<iso-8601-build-date>) [<arch>, <kind>, <os>, <compiler>[, <glibc>]]
var oneLineRe = regexp.MustCompile(
	`^([^/]+)/(\S+) \(([^)]+)\) \[([^,]+), ([^,]+), ([^,]+), ([^,\]]+)(?:, ([^\]]+))?\]$`)

// Format renders p in the textual one-line form. Round-trips through Parse
// when p has no wildcard attributes.
func Format(p Properties) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s (%s) [%s, %s, %s, %s",
		p.Name, p.Version, p.BuildDate.UTC().Format(buildDateLayout),
		p.Arch, p.Kind, p.OS, p.Compiler)
	if p.Glibc != "" {
		fmt.Fprintf(&sb, ", %s", p.Glibc)
	}
	sb.WriteString("]")
	return sb.String()
}

// Parse parses the textual one-line form produced by Format. Malformed
// input is logged and yields a default-constructed, Invalid() Properties
// value; callers treat such entries as absent rather than aborting.
func Parse(line string) Properties {
	line = strings.TrimSpace(line)
	m := oneLineRe.FindStringSubmatch(line)
	if m == nil {
		log.Printf("identity: malformed one-line properties %q", line)
		return Properties{invalid: true}
	}
	buildDate, err := time.Parse(buildDateLayout, m[3])
	if err != nil {
		log.Printf("identity: malformed build date %q in %q: %v", m[3], line, err)
		return Properties{invalid: true}
	}
	glibc := ""
	if len(m) > 8 {
		glibc = m[8]
	}
	return New(m[1], m[2], OS(m[6]), Arch(m[4]), Kind(m[5]), Compiler(m[7]), glibc, buildDate)
}
