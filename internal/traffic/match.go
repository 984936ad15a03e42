package traffic

import (
	"net/netip"
	"strings"
)

// Match reports whether rawAddr is covered by the exemption entry expr.
// expr is either a literal address or a CIDR range.
//
// The decision is a table over three independent outcomes rather than
// exception-driven control flow:
//   - rawAddr does not parse as an IP: fall back to exact string comparison
//     with the trimmed entry (a synthetic token in dev/test setups can still
//     be exempted by literal match); this result is terminal
//   - expr does not parse as an address or range: false
//   - both parse: containment, where any family mismatch is false
func Match(rawAddr, expr string) bool {
	expr = strings.TrimSpace(expr)

	addr, addrOK := parseAddr(rawAddr)
	if !addrOK {
		return rawAddr == expr
	}

	prefix, rangeOK := parseRange(expr)
	if !rangeOK {
		return false
	}

	return rangeContains(prefix, addr)
}

func parseAddr(s string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	// normalize 4-in-6 so "::ffff:203.0.113.5" matches v4 ranges
	return a.Unmap(), true
}

func parseRange(s string) (netip.Prefix, bool) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Masked(), true
	}
	// a bare address is treated as a single-host range
	if a, err := netip.ParseAddr(s); err == nil {
		a = a.Unmap()
		return netip.PrefixFrom(a, a.BitLen()), true
	}
	return netip.Prefix{}, false
}

// rangeContains is the fail-closed containment test: an invalid prefix or
// address, or a v4/v6 family mismatch, is "not contained", never an error.
func rangeContains(p netip.Prefix, a netip.Addr) bool {
	if !p.IsValid() || !a.IsValid() {
		return false
	}
	return p.Contains(a)
}
