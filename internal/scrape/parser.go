package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ciscoinsights/device-insights/internal/alerts"
)

var (
	firstDigits  = regexp.MustCompile(`\d+`)
	updatedStamp = regexp.MustCompile(`Updated:(\w+ \d{1,2}, \d{4})`)
)

// PageParser extracts alert records from support page HTML. Relative
// links are resolved against the configured base URL.
type PageParser struct {
	base *url.URL
}

// NewPageParser returns a parser resolving relative links against baseURL.
func NewPageParser(baseURL string) (*PageParser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", baseURL, err)
	}
	return &PageParser{base: base}, nil
}

// GeneralDates reads the series-level lifecycle dates from a product
// family support page. Rows pair a th label with a td value; unmatched
// or absent rows leave the corresponding date empty.
func (p *PageParser) GeneralDates(body []byte) alerts.GeneralDates {
	var g alerts.GeneralDates
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return g
	}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		label := strings.TrimSpace(th.Text())
		value := strings.TrimSpace(td.Text())
		switch {
		case strings.Contains(label, "Series Release Date"):
			g.SeriesReleaseDate = NormalizeDate(value)
		case strings.Contains(label, "End-of-Sale Date"):
			g.EndOfSaleDate = NormalizeDate(value)
		case strings.Contains(label, "End-of-Support Date"):
			g.EndOfSupportDate = NormalizeDate(value)
		}
	})
	return g
}

// EOLEntry assembles an end-of-life bulletin record from a bulletin page.
// Bulletin id and description stay nil when their elements are absent.
func (p *PageParser) EOLEntry(pageURL string, body []byte) (alerts.EndOfLifeEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return alerts.EndOfLifeEntry{}, fmt.Errorf("failed to parse bulletin page %s: %w", pageURL, err)
	}
	entry := alerts.EndOfLifeEntry{
		URL:              pageURL,
		Dates:            milestoneDates(doc),
		AffectedProducts: partNumbers(doc),
	}
	if id, ok := selectionText(doc, "p.pSubhead2CMT", "p.pToC_Subhead2"); ok {
		id = strings.ReplaceAll(id, " - Amended", "")
		entry.BulletinID = &id
	}
	if desc, ok := selectionText(doc, "p.pIntroCMT"); ok {
		entry.Description = &desc
	}
	return entry, nil
}

// milestoneDates reads the bulletin's first table into a single milestone
// map. Rows need at least three cells: label, affected release count, and
// date. The affects scope is the part after the label's single colon.
func milestoneDates(doc *goquery.Document) []alerts.DateEntry {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return []alerts.DateEntry{}
	}
	milestones := make(map[string]alerts.Milestone)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		key, ok := alerts.MilestoneKeyForLabel(label)
		if !ok {
			return
		}
		affects := "N/A"
		if parts := strings.Split(label, ":"); len(parts) == 2 {
			affects = parts[1]
		}
		milestones[key] = alerts.Milestone{
			Affects: affects,
			Date:    NormalizeLongDate(strings.TrimSpace(cells.Eq(2).Text())),
		}
	})
	return []alerts.DateEntry{{Milestones: milestones}}
}

// partNumbers reads the affected part numbers from the bulletin's second
// table, first cell of every row after the header.
func partNumbers(doc *goquery.Document) []string {
	parts := []string{}
	tables := doc.Find("table")
	if tables.Length() < 2 {
		return parts
	}
	tables.Eq(1).Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return
		}
		parts = append(parts, strings.TrimSpace(cell.Text()))
	})
	return parts
}

// Notice assembles a field notice record from a notice page. A page
// without a title, or whose title and document-id element both yield no
// notice id, is rejected.
func (p *PageParser) Notice(pageURL string, body []byte) (alerts.Notice, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return alerts.Notice{}, fmt.Errorf("failed to parse notice page %s: %w", pageURL, err)
	}
	titleNode := doc.Find("#fw-pagetitle").First()
	if titleNode.Length() == 0 {
		return alerts.Notice{}, fmt.Errorf("notice page %s has no title", pageURL)
	}
	title := strings.TrimSpace(titleNode.Text())
	id := firstDigits.FindString(title)
	if id == "" {
		id = strings.TrimSpace(doc.Find("documentId").First().Text())
	}
	if id == "" {
		return alerts.Notice{}, fmt.Errorf("notice page %s has no notice id", pageURL)
	}
	short, workaround := ParseNoticeTitle(title)
	return alerts.Notice{
		NoticeID:         id,
		URL:              pageURL,
		UpdatedDate:      updatedDate(doc),
		DescriptionShort: short,
		DescriptionLong:  paragraphsAfter(doc, "Problem Description"),
		Background:       firstParagraphAfter(doc, "Background"),
		ProblemSymptom:   paragraphsAfter(doc, "Problem Symptom"),
		Workaround:       workaround,
		Revisions:        revisions(doc),
		ProductsAffected: affectedProducts(doc),
	}, nil
}

// updatedDate pulls the "Updated:" stamp off a notice page, reformatted
// to DD-MM-YYYY. Missing or unparseable stamps yield "".
func updatedDate(doc *goquery.Document) string {
	m := updatedStamp.FindStringSubmatch(doc.Find(".updatedDate").First().Text())
	if m == nil {
		return ""
	}
	t, err := time.Parse(longFormDateLayout, m[1])
	if err != nil {
		return ""
	}
	return t.Format(wireDate)
}

// affectedProducts reads the products table following the "Products
// Affected" heading, keyed by normalized camelCase column headers.
func affectedProducts(doc *goquery.Document) []alerts.AffectedProduct {
	products := []alerts.AffectedProduct{}
	heading := headingNode(doc, "Products Affected")
	if heading == nil {
		return products
	}
	var table *goquery.Selection
	for _, candidate := range tablesAfter(heading, 2) {
		if candidate.Find("tr").Length() >= 1 {
			table = candidate
			break
		}
	}
	if table == nil {
		return products
	}
	var headers []string
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, CamelCase(strings.TrimSpace(th.Text())))
	})
	rows := table.Find("tr")
	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		product := make(alerts.AffectedProduct)
		row.Find("td").Each(func(i int, cell *goquery.Selection) {
			if i >= len(headers) {
				return
			}
			product[headers[i]] = strings.TrimSpace(cell.Text())
		})
		products = append(products, product)
	})
	return products
}

// revisions reads the bordered revision history table. The usual layout
// is three fixed columns; when no row fits it, column meaning is taken
// from the first row's normalized headers instead.
func revisions(doc *goquery.Document) []alerts.Revision {
	revs := []alerts.Revision{}
	table := doc.Find(`table[border="1"]`).First()
	if table.Length() == 0 {
		return revs
	}
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return revs
	}
	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		revs = append(revs, alerts.Revision{
			Revision:    strings.TrimSpace(cells.Eq(0).Text()),
			PublishDate: strings.TrimSpace(cells.Eq(1).Text()),
			Comments:    strings.TrimSpace(cells.Eq(2).Text()),
		})
	})
	if len(revs) > 0 {
		return revs
	}
	var headers []string
	rows.Eq(0).Find("td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, CamelCase(strings.TrimSpace(cell.Text())))
	})
	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		var rev alerts.Revision
		row.Find("td").Each(func(i int, cell *goquery.Selection) {
			if i >= len(headers) {
				return
			}
			value := strings.TrimSpace(cell.Text())
			switch headers[i] {
			case "revision":
				rev.Revision = value
			case "publishDate":
				rev.PublishDate = value
			case "comments":
				rev.Comments = value
			}
		})
		if rev != (alerts.Revision{}) {
			revs = append(revs, rev)
		}
	})
	return revs
}

// ListingLinks returns the absolute URLs of every anchor on a listing
// page whose href contains marker, deduplicated in document order.
func (p *PageParser) ListingLinks(body []byte, marker string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, marker) {
			return
		}
		resolved := p.resolve(href)
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	})
	return links
}

func (p *PageParser) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return p.base.ResolveReference(ref).String()
}

// headingNode finds the first h3 whose text equals title.
func headingNode(doc *goquery.Document, title string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("h3").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if strings.TrimSpace(h.Text()) == title {
			found = h
			return false
		}
		return true
	})
	return found
}

// firstParagraphAfter returns the text of the first paragraph sibling
// following the named h3 heading.
func firstParagraphAfter(doc *goquery.Document, title string) string {
	h := headingNode(doc, title)
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.NextAllFiltered("p").First().Text())
}

// paragraphsAfter joins the text of every paragraph sibling following
// the named h3 heading with newlines.
func paragraphsAfter(doc *goquery.Document, title string) string {
	h := headingNode(doc, title)
	if h == nil {
		return ""
	}
	var parts []string
	h.NextAllFiltered("p").Each(func(_ int, para *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(para.Text()))
	})
	return strings.Join(parts, "\n")
}

// tablesAfter collects up to limit tables following the heading in
// document order, crossing container boundaries the way the page reads.
func tablesAfter(h *goquery.Selection, limit int) []*goquery.Selection {
	if len(h.Nodes) == 0 {
		return nil
	}
	var tables []*goquery.Selection
	for n := nextNode(h.Nodes[0]); n != nil && len(tables) < limit; n = nextNode(n) {
		if n.Type == html.ElementNode && n.Data == "table" {
			tables = append(tables, goquery.NewDocumentFromNode(n).Selection)
		}
	}
	return tables
}

// nextNode advances one step through the parse tree in document order.
func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for n != nil {
		if n.NextSibling != nil {
			return n.NextSibling
		}
		n = n.Parent
	}
	return nil
}

// selectionText returns the trimmed text of the first selector that
// matches, reporting whether any matched at all.
func selectionText(doc *goquery.Document, selectors ...string) (string, bool) {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return strings.TrimSpace(s.Text()), true
		}
	}
	return "", false
}
