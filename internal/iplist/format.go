package iplist

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
)

// Format is the wire format of a list source.
type Format string

const (
	// FormatPlain is newline-delimited bare addresses.
	FormatPlain Format = "plain"
	// FormatStructured is a JSON document with a prefixes array.
	FormatStructured Format = "structured"
	// FormatAWS is the name the published AWS ip-ranges format goes by; it is
	// parsed exactly like FormatStructured.
	FormatAWS Format = "aws"
)

// DefaultService is the service tag kept from structured sources.
const DefaultService = "ROUTE53_HEALTHCHECKS"

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPlain, FormatStructured, FormatAWS:
		return f, nil
	default:
		return "", fmt.Errorf("unknown ip list format %q (want plain, structured or aws)", s)
	}
}

// parseResult carries the entries kept from a body and how many were skipped.
type parseResult struct {
	entries []string
	skipped int
}

// parse decodes body according to format. An unrecognized format yields no
// entries; the minimum length check is what rejects that.
func parse(format Format, body []byte, service string) (parseResult, error) {
	switch format {
	case FormatPlain:
		return parsePlain(body)
	case FormatStructured, FormatAWS:
		return parseStructured(body, service)
	default:
		return parseResult{}, nil
	}
}

// parsePlain turns each line holding an IPv4 address into a /32 CIDR.
// Lines that already carry a prefix length have their host bits cleared. IPv6 entries
// are counted as skipped since only IPv4 ingress ranges are managed.
func parsePlain(body []byte) (parseResult, error) {
	var res parseResult
	for i, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.Contains(line, "/") {
			p, err := netip.ParsePrefix(line)
			if err != nil {
				return parseResult{}, fmt.Errorf("line %d: invalid CIDR %q", i+1, line)
			}
			if !p.Addr().Is4() {
				res.skipped++
				continue
			}
			res.entries = append(res.entries, p.Masked().String())
			continue
		}

		addr, err := netip.ParseAddr(line)
		if err != nil {
			return parseResult{}, fmt.Errorf("line %d: invalid address %q", i+1, line)
		}
		if !addr.Is4() {
			res.skipped++
			continue
		}
		res.entries = append(res.entries, addr.String()+"/32")
	}
	return res, nil
}

type structuredDocument struct {
	Prefixes []structuredPrefix `json:"prefixes"`
}

type structuredPrefix struct {
	IPPrefix string `json:"ip_prefix"`
	Service  string `json:"service"`
}

// parseStructured keeps the masked ip_prefix of every IPv4 entry tagged with
// service.
func parseStructured(body []byte, service string) (parseResult, error) {
	var doc structuredDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return parseResult{}, fmt.Errorf("failed to decode prefix document: %w", err)
	}

	var res parseResult
	for _, p := range doc.Prefixes {
		if p.Service != service {
			continue
		}
		cidr := strings.TrimSpace(p.IPPrefix)
		if cidr == "" {
			res.skipped++
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return parseResult{}, fmt.Errorf("invalid ip_prefix %q: %w", p.IPPrefix, err)
		}
		if !prefix.Addr().Is4() {
			res.skipped++
			continue
		}
		res.entries = append(res.entries, prefix.Masked().String())
	}
	return res, nil
}
