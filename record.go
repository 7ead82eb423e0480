package ddns

// Record is one entry of a cPanel zone listing.
type Record struct {
	Name    string // fully qualified, with trailing dot
	Type    string
	Address string
	// Line is the record's position in the zone file as reported by cPanel.
	// An empty Line means the record does not exist yet.
	Line string
	TTL  int
}

// FindARecord returns the first A record in records whose name is exactly name.
func FindARecord(records []Record, name string) (Record, bool) {
	for _, r := range records {
		if r.Type == "A" && r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}
