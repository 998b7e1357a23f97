package stornext

import "strings"

// Residency describes where a managed file's content currently lives.
type Residency int

const (
	Unknown  Residency = iota
	OnDisk             // content present on primary disk
	Offline            // truncated stub; content must be retrieved
	Unstored           // never migrated to secondary media
)

var residencyNames = [...]string{
	Unknown:  "unknown",
	OnDisk:   "on-disk",
	Offline:  "offline",
	Unstored: "unstored",
}

func (r Residency) String() string {
	if r >= 0 && int(r) < len(residencyNames) {
		return residencyNames[r]
	}
	return "unknown"
}

// NeedsRetrieve reports whether the content must come from secondary media.
func (r Residency) NeedsRetrieve() bool {
	return r == Offline
}

// ParseFileInfo classifies the text printed by the file-metadata query.
// Matching is case-insensitive and ignores column padding. "not stored"
// wins over the disk phrases because an unstored file is always resident.
func ParseFileInfo(out string) Residency {
	s := strings.Join(strings.Fields(strings.ToLower(out)), " ")
	switch {
	case strings.Contains(s, "not stored"):
		return Unstored
	case strings.Contains(s, "exists on disk: yes"), strings.Contains(s, "location: disk"):
		return OnDisk
	case strings.Contains(s, "exists on disk: no"),
		strings.Contains(s, "location: tape"),
		strings.Contains(s, "truncated"):
		return Offline
	default:
		return Unknown
	}
}
