package engine

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
)

// Distribution is the detected Linux distribution family of the base image.
type Distribution string

const (
	Debian Distribution = "debian"
	Ubuntu Distribution = "ubuntu"
	CentOS Distribution = "centos"
	Fedora Distribution = "fedora"
)

// ParseDistribution maps an os-release ID token through the closed
// enumeration. Unsupported tokens are a hard stop, not a default.
func ParseDistribution(token string) (Distribution, error) {
	switch Distribution(token) {
	case Debian, Ubuntu, CentOS, Fedora:
		return Distribution(token), nil
	}
	return "", fmt.Errorf("unsupported operating system: %q", token)
}

// os-release assigns ID a lower-case token, optionally double-quoted.
var osReleaseID = regexp.MustCompile(`^ID="?([a-z0-9._-]+)"?$`)

// classifyOSRelease scans os-release content for the first ID= line and maps
// its token through the Distribution enumeration.
func classifyOSRelease(r io.Reader) (Distribution, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if m := osReleaseID.FindStringSubmatch(scanner.Text()); m != nil {
			return ParseDistribution(m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read os-release content: %w", err)
	}
	return "", fmt.Errorf("unable to determine the operating system of the base image: no ID field found")
}
