// Package features builds and serves the software feature archive fed
// by the Cisco Feature Navigator.
package features

import "fmt"

// Feature is one software feature as listed by the Feature Navigator.
type Feature struct {
	Name           string `json:"feature_name"`
	Description    string `json:"feature_desc"`
	SetDescription string `json:"feature_set_desc"`
}

// Platform is a hardware platform known to the Feature Navigator.
type Platform struct {
	ID             int    `json:"platform_id"`
	Name           string `json:"platform_name"`
	MDFProductType string `json:"mdf_product_type"`
}

// Release is a software release available on a platform.
type Release struct {
	ID         int    `json:"release_id"`
	Number     string `json:"release_number"`
	PlatformID int    `json:"platform_id"`
}

// PlatformTypes lists the MDF product types the catalog is fetched and
// grouped under.
var PlatformTypes = []string{
	"Switches",
	"Routers",
	"Wireless",
	"IOT Routers",
	"IOT Switches",
}

// IsPlatformType reports whether s names a known platform type.
func IsPlatformType(s string) bool {
	for _, t := range PlatformTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Archive member names.
const (
	uniqueFeaturesMember = "unique_features.json"
	platformsMember      = "platforms.json"
	releasesMember       = "releases.json"
)

// pairMember names the archive member holding one platform/release
// pair's feature hash list.
func pairMember(platformID, releaseID int) string {
	return fmt.Sprintf("%d_%d.json", platformID, releaseID)
}
