// Package alerts defines the product alert records assembled from Cisco's
// support site: field notices, end-of-life bulletins, and the per-family
// product pages that carry them inside the archive.
package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// GeneralDates carries the series-level lifecycle dates shown at the top of
// a product family support page. Absent dates stay empty strings.
type GeneralDates struct {
	SeriesReleaseDate string `json:"SeriesReleaseDate"`
	EndOfSaleDate     string `json:"EndOfSaleDate"`
	EndOfSupportDate  string `json:"EndOfSupportDate"`
}

// Milestone pairs the scope a lifecycle milestone affects with its date.
type Milestone struct {
	Affects string `json:"affects"`
	Date    string `json:"date"`
}

// Recognized milestone keys inside an EndOfLifeEntry's dates sequence.
const (
	MilestoneEOLAnnouncement      = "endOfLifeAnnouncementDate"
	MilestoneEndOfSale            = "endOfSaleDate"
	MilestoneLastShip             = "lastShipDate"
	MilestoneEndOfSWMaintenance   = "endOfSoftwareMaintenance"
	MilestoneEndOfVulnSupport     = "endOfVulnerabilitySecuritySupport"
	MilestoneEndOfServiceAttach   = "endOfNewServiceAttachmentDate"
	MilestoneLastDateOfSupport    = "lastDateOfSupport"
	MilestoneEndOfContractRenewal = "endOfServiceContractRenewalDate"
	MilestoneEndOfFailureAnalysis = "endOfRoutineFailureAnalysisDate"
)

// milestoneLabels maps row-label keywords to milestone keys. Order matters:
// the first keyword contained in a label wins.
var milestoneLabels = []struct {
	Keyword string
	Key     string
}{
	{"End-of-Life Announcement", MilestoneEOLAnnouncement},
	{"End-of-Sale", MilestoneEndOfSale},
	{"Last Ship", MilestoneLastShip},
	{"End of SW Maintenance", MilestoneEndOfSWMaintenance},
	{"End of Vulnerability/Security", MilestoneEndOfVulnSupport},
	{"End of New Service", MilestoneEndOfServiceAttach},
	{"Last Date of Support", MilestoneLastDateOfSupport},
	{"End of Service Contract Renewal", MilestoneEndOfContractRenewal},
	{"End of Routine Failure Analysis", MilestoneEndOfFailureAnalysis},
}

var milestoneKeySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(milestoneLabels))
	for _, m := range milestoneLabels {
		set[m.Key] = struct{}{}
	}
	return set
}()

// MilestoneKeyForLabel resolves a milestone table row label to its key.
// The second return is false when the label is not recognized.
func MilestoneKeyForLabel(label string) (string, bool) {
	for _, m := range milestoneLabels {
		if strings.Contains(label, m.Keyword) {
			return m.Key, true
		}
	}
	return "", false
}

// IsMilestoneKey reports whether key is one of the recognized milestone keys.
func IsMilestoneKey(key string) bool {
	_, ok := milestoneKeySet[key]
	return ok
}

// DateEntry is one element of an EndOfLifeEntry's dates sequence. Exactly one
// of General and Milestones is set: the general form appears only as element
// 0 of an indexed entry, the milestone form everywhere else.
type DateEntry struct {
	General    *GeneralDates
	Milestones map[string]Milestone
}

// IsGeneral reports whether the entry carries the series-level date triple.
func (d DateEntry) IsGeneral() bool {
	return d.General != nil
}

// MilestoneKeys returns the sorted milestone keys present in the entry.
func (d DateEntry) MilestoneKeys() []string {
	keys := make([]string, 0, len(d.Milestones))
	for k := range d.Milestones {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON emits the general triple or the milestone map, matching the
// archive wire format.
func (d DateEntry) MarshalJSON() ([]byte, error) {
	if d.General != nil {
		return json.Marshal(d.General)
	}
	if d.Milestones == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Milestones)
}

// UnmarshalJSON detects the entry shape by its value types: string values
// mean the general triple, object values mean milestones. Mixed objects are
// a decode error.
func (d *DateEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.General = nil
	d.Milestones = nil
	if len(raw) == 0 {
		d.Milestones = map[string]Milestone{}
		return nil
	}
	var strVals, objVals int
	for key, v := range raw {
		trimmed := bytes.TrimSpace(v)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '"':
			strVals++
		case len(trimmed) > 0 && trimmed[0] == '{':
			objVals++
		default:
			return fmt.Errorf("date entry %q: unexpected JSON value %s", key, trimmed)
		}
	}
	if strVals > 0 && objVals > 0 {
		return fmt.Errorf("date entry mixes general dates with milestones")
	}
	if strVals > 0 {
		var g GeneralDates
		if err := json.Unmarshal(data, &g); err != nil {
			return fmt.Errorf("decode general dates: %w", err)
		}
		d.General = &g
		return nil
	}
	var m map[string]Milestone
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode milestones: %w", err)
	}
	d.Milestones = m
	return nil
}

// OptionalFlag is a tri-state boolean whose wire form is true, false, or ""
// when the source page could not be parsed.
type OptionalFlag struct {
	Value bool
	Valid bool
}

// Flag returns a parsed OptionalFlag holding v.
func Flag(v bool) OptionalFlag {
	return OptionalFlag{Value: v, Valid: true}
}

// MarshalJSON emits the bool when parsed and "" otherwise.
func (f OptionalFlag) MarshalJSON() ([]byte, error) {
	if f.Valid {
		return json.Marshal(f.Value)
	}
	return json.Marshal("")
}

// UnmarshalJSON accepts a JSON bool, or any string/null as the unparsed state.
func (f *OptionalFlag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		f.Value, f.Valid = false, false
		return nil
	}
	switch trimmed[0] {
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		f.Value, f.Valid = v, true
		return nil
	case '"', 'n':
		f.Value, f.Valid = false, false
		return nil
	default:
		return fmt.Errorf("workaround flag: unexpected JSON value %s", trimmed)
	}
}

// Revision is one row of a field notice's revision history table.
type Revision struct {
	Revision    string `json:"revision"`
	PublishDate string `json:"publishDate"`
	Comments    string `json:"comments"`
}

// AffectedProduct is one row of a notice's products-affected table, keyed by
// normalized camelCase column headers. Header sets vary by page.
type AffectedProduct map[string]string

// Known products-affected column keys produced by header normalization.
const (
	ColumnProductID       = "affectedProductId"
	ColumnProductName     = "affectedProductName"
	ColumnOSType          = "affectedOsType"
	ColumnRelease         = "affectedRelease"
	ColumnSoftwareProduct = "affectedSoftwareProduct"
	ColumnProductsText    = "productsAffected"
)

// ProductID returns the affected product id column, or "".
func (p AffectedProduct) ProductID() string { return p[ColumnProductID] }

// ProductName returns the affected product name column, or "".
func (p AffectedProduct) ProductName() string { return p[ColumnProductName] }

// OSType returns the affected OS type column, or "".
func (p AffectedProduct) OSType() string { return p[ColumnOSType] }

// Release returns the affected release column, or "".
func (p AffectedProduct) Release() string { return p[ColumnRelease] }

// SoftwareProduct returns the affected software product column, or "".
func (p AffectedProduct) SoftwareProduct() string { return p[ColumnSoftwareProduct] }

// Text returns the free-text products-affected column, or "".
func (p AffectedProduct) Text() string { return p[ColumnProductsText] }

// SoftwareType returns the OS type column, falling back to the software
// product column when the page labels the type that way.
func (p AffectedProduct) SoftwareType() string {
	if v := p.OSType(); v != "" {
		return v
	}
	return p.SoftwareProduct()
}

// Notice is a field notice record.
type Notice struct {
	NoticeID         string            `json:"noticeId"`
	URL              string            `json:"url"`
	UpdatedDate      string            `json:"updatedDate"`
	DescriptionShort string            `json:"descriptionShort"`
	DescriptionLong  string            `json:"descriptionLong"`
	Background       string            `json:"background"`
	ProblemSymptom   string            `json:"problemSymptom"`
	Workaround       OptionalFlag      `json:"workaround"`
	Revisions        []Revision        `json:"revisions"`
	ProductsAffected []AffectedProduct `json:"productsAffected"`
}

// EndOfLifeEntry is an end-of-life / end-of-sale bulletin record.
type EndOfLifeEntry struct {
	BulletinID       *string     `json:"bulletinId"`
	URL              string      `json:"url"`
	Description      *string     `json:"description"`
	Dates            []DateEntry `json:"dates"`
	AffectedProducts []string    `json:"affectedProducts"`
}

// ProductPage is one archive member: the alert records assembled for a
// single product family, plus the family's general lifecycle dates.
type ProductPage struct {
	SeriesReleaseDate string           `json:"SeriesReleaseDate"`
	EndOfSaleDate     string           `json:"EndOfSaleDate"`
	EndOfSupportDate  string           `json:"EndOfSupportDate"`
	EOLs              []EndOfLifeEntry `json:"EOLS"`
	FNs               []Notice         `json:"FNS"`
}

// GeneralDates returns the page's date triple with absent values as "".
func (p ProductPage) GeneralDates() GeneralDates {
	return GeneralDates{
		SeriesReleaseDate: p.SeriesReleaseDate,
		EndOfSaleDate:     p.EndOfSaleDate,
		EndOfSupportDate:  p.EndOfSupportDate,
	}
}
