package devprobe

import "golang.org/x/mod/semver"

// DriverVersions records each compatible string's declared driver
// version. This model's boards never attach two devices whose
// compatible value could both match the same prober — every ident
// registered in this repo is claimed by exactly one driver — so there
// is no live tie to break today. The surface is kept anyway, thin and
// documented, as the hook a board with overlapping compatible strings
// would need.
type DriverVersions map[string]string

// PreferredCompatible returns whichever of a or b declares the higher
// semver version in versions, defaulting to a when either is missing or
// malformed.
func PreferredCompatible(versions DriverVersions, a, b string) string {
	va, ok := versions[a]
	if !ok || !semver.IsValid(va) {
		return a
	}
	vb, ok := versions[b]
	if !ok || !semver.IsValid(vb) {
		return a
	}
	if semver.Compare(vb, va) > 0 {
		return b
	}
	return a
}
