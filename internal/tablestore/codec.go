// Package tablestore provides rate table persistence backends.
//
// The persisted format is deliberately neutral data, not code: one entry per
// line, "<hex digest> <unix seconds>", sorted by key so identical tables
// serialize identically. It round-trips losslessly and is not executable.
package tablestore

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/Ahuahuachi/PrivateBin/internal/traffic"
	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// Encode serializes a rate table into the line format.
func Encode(t traffic.Table) []byte {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(t[k], 10))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Decode parses the line format back into a table. Malformed content is an
// error, not an empty table: the gate's correctness depends on table
// integrity, so corruption must surface instead of quietly resetting history.
func Decode(data []byte) (traffic.Table, error) {
	t := traffic.Table{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		key, val, ok := strings.Cut(text, " ")
		if !ok || key == "" {
			return nil, xerrors.Newf("rate table line %d: malformed entry", line)
		}
		ts, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, xerrors.Wrapf(err, "rate table line %d: bad timestamp", line)
		}
		t[key] = ts
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(err, "scan rate table")
	}
	return t, nil
}
