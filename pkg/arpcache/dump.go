package arpcache

import (
	"fmt"
	"io"
	"sort"
	"strconv"
)

// stateLabel returns the table-dump label for an entry. The labels and the
// STALE default branch match the kernel-style neighbor table output this
// format is compatible with.
func stateLabel(e *Entry) string {
	switch {
	case e.IsFresh():
		return "REACHABLE"
	case e.IsAwaitingReply():
		return "DELAY"
	case e.IsPermanent():
		return "PERMANENT"
	case e.IsAutoGenerated():
		return "STATIC_AUTOGENERATED"
	default:
		return "STALE"
	}
}

// WriteTable writes the cache contents, one entry per line, in the format
//
//	<address> dev <ifaceNameOrIndex> lladdr <linkAddress> <LABEL>
//
// Entries are ordered by address so the output is stable.
func (c *Cache) WriteTable(w io.Writer) error {
	dev := c.iface.Name()
	if dev == "" {
		dev = strconv.Itoa(c.iface.Index())
	}

	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].addr.Less(entries[j].addr)
	})

	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s dev %s lladdr %s %s\n", e.addr, dev, e.lladdr, stateLabel(e)); err != nil {
			return err
		}
	}
	return nil
}
