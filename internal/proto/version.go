package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the protocol version this server speaks.
const Version = "1.2.0"

// Compatible reports whether a client speaking clientVersion can talk to
// this server. Majors must match; the client's minor may not exceed ours.
// Patch level is ignored.
func Compatible(clientVersion string) bool {
	cMajor, cMinor, _, err := parseVersion(clientVersion)
	if err != nil {
		return false
	}
	sMajor, sMinor, _, _ := parseVersion(Version)
	return cMajor == sMajor && cMinor <= sMinor
}

func parseVersion(v string) (major, minor, patch int, err error) {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed version %q", v)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("malformed version %q", v)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
