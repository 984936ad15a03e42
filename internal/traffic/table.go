package traffic

// Table is the persisted rate table: compact identity digest -> unix seconds
// of that identity's last allowed submission. At most one entry exists per
// identity; digest collisions across distinct addresses are accepted as a
// negligible risk rather than handled.
type Table map[string]int64

// Purge drops every entry whose admission window expired before now. Running
// this on every check bounds the table to identities active within the last
// limit seconds.
func (t Table) Purge(now, limit int64) {
	for key, last := range t {
		if last+limit < now {
			delete(t, key)
		}
	}
}
