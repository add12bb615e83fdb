package cache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// TopologyHeaderPrefix starts the first line of every artifact written in
// whole-design mode.
const TopologyHeaderPrefix = "-- Topology hash: "

// maxLeadingLine bounds how much of an existing artifact is read to find
// its digest line.
const maxLeadingLine = 4096

// TopologyHeader formats the whole-design digest line (without newline).
func TopologyHeader(fingerprint uint64) string {
	return fmt.Sprintf("%s%016x", TopologyHeaderPrefix, fingerprint)
}

// ParseTopologyHeader extracts the fingerprint from a digest line.
func ParseTopologyHeader(line string) (uint64, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, TopologyHeaderPrefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(line[len(TopologyHeaderPrefix):]), 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// leadingLine returns the first line of content including its '\n'.
// Content without a newline is one line.
func leadingLine(content []byte) []byte {
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		return content[:i+1]
	}
	return content
}

// readLeadingLine reads the first line of the file at path, including its
// terminating '\n'. complete is false when the file ended (or the read limit
// was hit) before a newline; such a line is never trusted as a digest.
// A missing file returns os.ErrNotExist.
func readLeadingLine(path string) (line []byte, complete bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(io.LimitReader(f, maxLeadingLine), maxLeadingLine)
	line, err = r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return line, false, nil
		}
		return nil, false, err
	}
	return line, true, nil
}

// sameLeadingLine reports whether an existing leading line, as returned by
// readLeadingLine, matches want. A want without '\n' is the whole artifact,
// so it matches only a file that ended right after it.
func sameLeadingLine(have []byte, complete bool, want []byte) bool {
	if len(want) > 0 && want[len(want)-1] == '\n' {
		return complete && bytes.Equal(have, want)
	}
	return !complete && len(want) < maxLeadingLine && bytes.Equal(have, want)
}
