package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciscoinsights/device-insights/internal/alerts"
)

const familyPageHTML = `<html><body>
<table>
  <tr><th>Series Release Date</th><td>01-Apr-2013</td></tr>
  <tr><th>End-of-Sale Date</th><td>30-Oct-2021</td></tr>
  <tr><th>End-of-Support Date</th><td>31-Oct-2026</td></tr>
  <tr><th>Warranty</th><td>90 days</td></tr>
</table>
</body></html>`

const bulletinPageHTML = `<html><body>
<p class="pSubhead2CMT">EOL12345 - Amended</p>
<p class="pIntroCMT">Cisco announces the end-of-sale and end-of-life dates for the Catalyst 6500 Series running IOS 15.1SY.</p>
<table>
  <tr><th>Milestone</th><th>Definition</th><th>Date</th></tr>
  <tr><td>End-of-Life Announcement Date</td><td>The date the document was announced.</td><td>January 31, 2022</td></tr>
  <tr><td>End-of-Sale Date: HW</td><td>Last day to order.</td><td>July 31, 2022</td></tr>
  <tr><td>Last Date of Support: HW</td><td>Last day of support.</td><td>July 31, 2027</td></tr>
  <tr><td>Some Other Row</td><td>Not a milestone.</td><td>August 1, 2030</td></tr>
</table>
<table>
  <tr><th>Part Number</th><th>Description</th></tr>
  <tr><td>WS-C6509-E</td><td>Chassis, 9 slot</td></tr>
  <tr><td>WS-C6513-E</td><td>Chassis, 13 slot</td></tr>
</table>
</body></html>`

const noticePageHTML = `<html><body>
<div class="updatedDate">Updated:June 5, 2023</div>
<h1 id="fw-pagetitle">FN70545 - Catalyst 9300 Series - Fan May Stop Spinning - Workaround Provided</h1>
<div>
  <h3>Background</h3>
  <p>Early fan units shipped with defective bearings.</p>
</div>
<div>
  <h3>Problem Description</h3>
  <p>The fan may stop spinning.</p>
  <p>Affected units overheat under sustained load.</p>
</div>
<div>
  <h3>Problem Symptom</h3>
  <p>Fan alarms appear in the system log.</p>
</div>
<div>
  <h3>Products Affected</h3>
</div>
<div>
  <table>
    <tr><th>Affected Product ID</th><th>Affected OS Type</th><th>Affected Release</th><th>Affected Software Product</th></tr>
    <tr><td>C9300-24T</td><td>IOS XE</td><td>17.3.1</td><td>IOS XE Software</td></tr>
    <tr><td>C9300-48T</td><td>IOS XE</td><td>17.3.2</td><td>IOS XE Software</td></tr>
  </table>
</div>
<h3>Revision History</h3>
<table border="1">
  <tr><td>Revision</td><td>Date</td><td>Comment</td></tr>
  <tr><td>1.1</td><td>June 5, 2023</td><td>Updated affected products</td></tr>
  <tr><td>1.0</td><td>January 10, 2023</td><td>Initial release</td></tr>
</table>
</body></html>`

func newTestParser(t *testing.T) *PageParser {
	t.Helper()
	p, err := NewPageParser("https://www.cisco.com")
	require.NoError(t, err)
	return p
}

func TestPageParser_GeneralDates(t *testing.T) {
	p := newTestParser(t)

	dates := p.GeneralDates([]byte(familyPageHTML))
	require.Equal(t, "01-04-2013", dates.SeriesReleaseDate)
	require.Equal(t, "30-10-2021", dates.EndOfSaleDate)
	require.Equal(t, "31-10-2026", dates.EndOfSupportDate)
}

func TestPageParser_GeneralDates_NoRows(t *testing.T) {
	p := newTestParser(t)

	dates := p.GeneralDates([]byte("<html><body><p>nothing here</p></body></html>"))
	require.Equal(t, alerts.GeneralDates{}, dates)
}

func TestPageParser_EOLEntry(t *testing.T) {
	p := newTestParser(t)

	entry, err := p.EOLEntry("https://www.cisco.com/eol12345.html", []byte(bulletinPageHTML))
	require.NoError(t, err)

	require.NotNil(t, entry.BulletinID)
	require.Equal(t, "EOL12345", *entry.BulletinID)
	require.NotNil(t, entry.Description)
	require.Contains(t, *entry.Description, "Catalyst 6500 Series")
	require.Equal(t, "https://www.cisco.com/eol12345.html", entry.URL)
	require.Equal(t, []string{"WS-C6509-E", "WS-C6513-E"}, entry.AffectedProducts)

	require.Len(t, entry.Dates, 1)
	milestones := entry.Dates[0].Milestones
	require.Len(t, milestones, 3)
	require.Equal(t, alerts.Milestone{Affects: "N/A", Date: "31-01-2022"}, milestones[alerts.MilestoneEOLAnnouncement])
	require.Equal(t, alerts.Milestone{Affects: " HW", Date: "31-07-2022"}, milestones[alerts.MilestoneEndOfSale])
	require.Equal(t, alerts.Milestone{Affects: " HW", Date: "31-07-2027"}, milestones[alerts.MilestoneLastDateOfSupport])
}

func TestPageParser_EOLEntry_FallbackTitleSelector(t *testing.T) {
	p := newTestParser(t)

	body := []byte(`<html><body><p class="pToC_Subhead2">EOL99</p></body></html>`)
	entry, err := p.EOLEntry("u", body)
	require.NoError(t, err)
	require.NotNil(t, entry.BulletinID)
	require.Equal(t, "EOL99", *entry.BulletinID)
	require.Nil(t, entry.Description)
}

func TestPageParser_EOLEntry_SparsePage(t *testing.T) {
	p := newTestParser(t)

	entry, err := p.EOLEntry("u", []byte("<html><body></body></html>"))
	require.NoError(t, err)
	require.Nil(t, entry.BulletinID)
	require.Nil(t, entry.Description)
	require.Empty(t, entry.Dates)
	require.Empty(t, entry.AffectedProducts)
	require.NotNil(t, entry.Dates)
	require.NotNil(t, entry.AffectedProducts)
}

func TestPageParser_Notice(t *testing.T) {
	p := newTestParser(t)

	notice, err := p.Notice("https://www.cisco.com/fn70545.html", []byte(noticePageHTML))
	require.NoError(t, err)

	require.Equal(t, "70545", notice.NoticeID)
	require.Equal(t, "https://www.cisco.com/fn70545.html", notice.URL)
	require.Equal(t, "05-06-2023", notice.UpdatedDate)
	require.Equal(t, "Fan May Stop Spinning", notice.DescriptionShort)
	require.Equal(t, alerts.Flag(true), notice.Workaround)
	require.Equal(t, "Early fan units shipped with defective bearings.", notice.Background)
	require.Equal(t, "The fan may stop spinning.\nAffected units overheat under sustained load.", notice.DescriptionLong)
	require.Equal(t, "Fan alarms appear in the system log.", notice.ProblemSymptom)

	require.Len(t, notice.ProductsAffected, 2)
	first := notice.ProductsAffected[0]
	require.Equal(t, "C9300-24T", first.ProductID())
	require.Equal(t, "IOS XE", first.OSType())
	require.Equal(t, "17.3.1", first.Release())
	require.Equal(t, "IOS XE Software", first.SoftwareProduct())
	require.Equal(t, "C9300-48T", notice.ProductsAffected[1].ProductID())

	require.Equal(t, []alerts.Revision{
		{Revision: "1.1", PublishDate: "June 5, 2023", Comments: "Updated affected products"},
		{Revision: "1.0", PublishDate: "January 10, 2023", Comments: "Initial release"},
	}, notice.Revisions)
}

func TestPageParser_Notice_DocumentIDFallback(t *testing.T) {
	p := newTestParser(t)

	body := []byte(`<html><body>
<h1 id="fw-pagetitle">Field Notice - Power Supply</h1>
<documentId>FN63331</documentId>
</body></html>`)
	notice, err := p.Notice("u", body)
	require.NoError(t, err)
	require.Equal(t, "FN63331", notice.NoticeID)
	require.Empty(t, notice.DescriptionShort)
	require.False(t, notice.Workaround.Valid)
}

func TestPageParser_Notice_MissingTitle(t *testing.T) {
	p := newTestParser(t)

	_, err := p.Notice("u", []byte("<html><body><p>no title</p></body></html>"))
	require.Error(t, err)
}

func TestPageParser_Notice_NoNoticeID(t *testing.T) {
	p := newTestParser(t)

	body := []byte(`<html><body><h1 id="fw-pagetitle">Field Notice - Power Supply</h1></body></html>`)
	_, err := p.Notice("u", body)
	require.Error(t, err)
}

func TestPageParser_Notice_DynamicRevisionHeaders(t *testing.T) {
	p := newTestParser(t)

	body := []byte(`<html><body>
<h1 id="fw-pagetitle">FN100 - X - Y - Workaround Provided</h1>
<table border="1">
  <tr><td>Revision</td><td>Publish Date</td></tr>
  <tr><td>1.0</td><td>2023-01-10</td></tr>
</table>
</body></html>`)
	notice, err := p.Notice("u", body)
	require.NoError(t, err)
	require.Equal(t, []alerts.Revision{{Revision: "1.0", PublishDate: "2023-01-10"}}, notice.Revisions)
}

func TestPageParser_ListingLinks(t *testing.T) {
	p := newTestParser(t)

	body := []byte(`<html><body>
<a href="/c/en/us/products/switches/catalyst-6500-eol.html">Bulletin</a>
<a href="https://www.cisco.com/c/en/us/support/docs/field-notices/705/fn70545.html">FN</a>
<a href="/c/en/us/products/switches/catalyst-6500-eol.html">Bulletin again</a>
<a href="/c/en/us/about.html">Other</a>
</body></html>`)

	eols := p.ListingLinks(body, "eol.html")
	require.Equal(t, []string{"https://www.cisco.com/c/en/us/products/switches/catalyst-6500-eol.html"}, eols)

	fns := p.ListingLinks(body, "field-notices")
	require.Equal(t, []string{"https://www.cisco.com/c/en/us/support/docs/field-notices/705/fn70545.html"}, fns)

	require.Empty(t, p.ListingLinks(body, "security-advisory"))
}
