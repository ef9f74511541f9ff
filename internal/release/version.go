package release

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Newer reports whether latest is a newer tag than installed. Tags that are
// not semantic versions are compared for inequality only.
func Newer(installed, latest string) bool {
	iv, ierr := semver.NewVersion(installed)
	lv, lerr := semver.NewVersion(latest)
	if ierr != nil || lerr != nil {
		return strings.TrimPrefix(installed, "v") != strings.TrimPrefix(latest, "v")
	}
	return lv.GreaterThan(iv)
}
