// Package catalog loads the protocol catalog file (spec.md §6) and exposes
// the (protocol, port) → application-name lookup the ingest pipeline uses
// for layer7 normalisation (spec.md §4.2 step 3) and the reporting
// re-aggregator uses for the "layer7" group field (spec.md §4.3).
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type key struct {
	proto uint8
	port  uint16
}

// Catalog maps (protocol, port) pairs to application names.
type Catalog struct {
	entries map[key]string
}

// Empty returns a Catalog with no entries — every lookup misses, so every
// flow normalises to (0, 0) ("other").
func Empty() *Catalog {
	return &Catalog{entries: map[key]string{}}
}

// Load parses the catalog file at path. Format: one entry per line,
// whitespace-separated fields `protocol port name`. Blank lines and lines
// starting with '#' are ignored. Entries sharing the same name across
// consecutive lines are accepted but carry no special grouping beyond the
// name match itself — Go's map-based lookup makes the original format's
// "shared index" bookkeeping unnecessary.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads catalog entries from r.
func Parse(r io.Reader) (*Catalog, error) {
	c := Empty()
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("catalog: line %d: expected 3 fields, got %d", lineNo, len(fields))
		}

		proto, err := strconv.ParseUint(fields[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: invalid protocol: %w", lineNo, err)
		}
		port, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: invalid port: %w", lineNo, err)
		}
		name := strings.Join(fields[2:], " ")

		c.entries[key{proto: uint8(proto), port: uint16(port)}] = name
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the application name for (proto, port), and whether an
// entry exists.
func (c *Catalog) Lookup(proto uint8, port uint16) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.entries[key{proto: proto, port: port}]
	return name, ok
}

// Normalize implements spec.md §4.2 step 3: if no catalog entry exists for
// (proto, port), both are clobbered to zero so unrecognised traffic
// aggregates into one "other" record per host.
func (c *Catalog) Normalize(proto uint8, port uint16) (uint8, uint16) {
	if _, ok := c.Lookup(proto, port); ok {
		return proto, port
	}
	return 0, 0
}

// Name returns the layer7 name for (proto, port), or "other" if unmapped.
func (c *Catalog) Name(proto uint8, port uint16) string {
	if name, ok := c.Lookup(proto, port); ok {
		return name
	}
	return "other"
}
