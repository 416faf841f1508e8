package imapsync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"
)

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		} else {
			return b[:len(b)-1]
		}
	}
	return b
}

// MakeIMAPLiteral generates IMAP literal syntax for non-ASCII strings.
// It returns a string in the format "{bytecount}\r\ntext" where bytecount
// is the number of bytes (not characters) in the input string.
func MakeIMAPLiteral(s string) string {
	return fmt.Sprintf("{%d}\r\n%s", len([]byte(s)), s)
}

// humanBytes formats a byte count for log output.
func humanBytes(n int) string {
	return humanize.Bytes(uint64(n))
}

// FormatUIDSet compresses a list of UIDs into the protocol's set syntax,
// collapsing consecutive runs into ranges (e.g. 1,2,3,7 -> "1:3,7").
func FormatUIDSet(uids []uint64) string {
	if len(uids) == 0 {
		return ""
	}
	sorted := make([]uint64, len(uids))
	copy(sorted, uids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sb strings.Builder
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if sb.Len() != 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(start, 10))
		if prev != start {
			sb.WriteByte(':')
			sb.WriteString(strconv.FormatUint(prev, 10))
		}
	}
	for _, u := range sorted[1:] {
		if u == prev {
			continue
		}
		if u == prev+1 {
			prev = u
			continue
		}
		flush()
		start, prev = u, u
	}
	flush()
	return sb.String()
}
