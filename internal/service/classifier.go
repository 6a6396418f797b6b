package service

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// ExclusionReason names the rule that excluded a request from counting
type ExclusionReason string

const (
	ReasonNone      ExclusionReason = ""
	ReasonPath      ExclusionReason = "path"
	ReasonUserAgent ExclusionReason = "user_agent"
	ReasonIP        ExclusionReason = "ip"
)

// Classifier decides whether a request is counted as a visit.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	pathPrefixes []string
	botPatterns  []*regexp.Regexp
	networks     []netip.Prefix
}

// NewClassifier compiles the exclusion rules. Bot patterns match the
// User-Agent case-insensitively; cidrs may mix IPv4 and IPv6.
func NewClassifier(pathPrefixes, botPatterns, cidrs []string) (*Classifier, error) {
	c := &Classifier{
		pathPrefixes: append([]string(nil), pathPrefixes...),
		botPatterns:  make([]*regexp.Regexp, 0, len(botPatterns)),
		networks:     make([]netip.Prefix, 0, len(cidrs)),
	}

	for _, pattern := range botPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid bot pattern %q: %w", pattern, err)
		}
		c.botPatterns = append(c.botPatterns, re)
	}

	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		c.networks = append(c.networks, prefix.Masked())
	}

	return c, nil
}

// Classify evaluates path, User-Agent and IP rules in that order and returns
// the first one that matches, or ReasonNone when the request is counted
func (c *Classifier) Classify(path, userAgent, ip string) ExclusionReason {
	for _, prefix := range c.pathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ReasonPath
		}
	}

	if strings.TrimSpace(userAgent) == "" {
		return ReasonUserAgent
	}
	for _, re := range c.botPatterns {
		if re.MatchString(userAgent) {
			return ReasonUserAgent
		}
	}

	// An empty or unparseable IP matches no network
	if addr, err := netip.ParseAddr(ip); err == nil {
		addr = addr.WithZone("").Unmap()
		for _, network := range c.networks {
			if network.Contains(addr) {
				return ReasonIP
			}
		}
	}

	return ReasonNone
}

// Exclude reports whether the request must not be counted
func (c *Classifier) Exclude(path, userAgent, ip string) bool {
	return c.Classify(path, userAgent, ip) != ReasonNone
}
