package release

import (
	"strings"

	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
)

// SelectAsset returns the first asset, in catalog order, whose lower-cased
// name contains both vocabulary keywords and does not contain "symbol".
// Matching is by substring because asset names follow no strict grammar.
func SelectAsset(rel *Release, v platform.Vocabulary) (*Asset, error) {
	for i := range rel.Assets {
		name := strings.ToLower(rel.Assets[i].Name)
		if strings.Contains(name, v.OSKeyword) &&
			strings.Contains(name, v.ArchKeyword) &&
			!strings.Contains(name, "symbol") {
			return &rel.Assets[i], nil
		}
	}
	return nil, &AssetNotFoundError{Tag: rel.TagName, Platform: v.String()}
}

// FindAsset returns the asset with exactly the given name, or nil.
func FindAsset(rel *Release, name string) *Asset {
	for i := range rel.Assets {
		if rel.Assets[i].Name == name {
			return &rel.Assets[i]
		}
	}
	return nil
}
