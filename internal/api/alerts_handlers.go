package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/ciscoinsights/device-insights/internal/alerts"
	"github.com/ciscoinsights/device-insights/internal/index"
)

// alertQuery is the filter set accepted by the product alert routes.
// Each non-empty parameter group runs as its own filter pass and the
// passes are unioned, deduplicated by record URL.
type alertQuery struct {
	productID   string
	productName string
	swType      string
	swVersion   string
}

func parseAlertQuery(q url.Values) alertQuery {
	return alertQuery{
		productID:   q.Get("product_id"),
		productName: q.Get("product_name"),
		swType:      q.Get("software_type"),
		swVersion:   q.Get("software_version"),
	}
}

func (aq alertQuery) empty() bool {
	return aq.productID == "" && aq.productName == "" && aq.swType == ""
}

// validate enforces that the software parameters arrive as a pair and
// that the requested type is known to the snapshot.
func (aq alertQuery) validate(snap *index.Index) error {
	if (aq.swType == "") != (aq.swVersion == "") {
		return fmt.Errorf("software_type and software_version must be provided together")
	}
	if aq.swType != "" && !snap.HasSoftwareType(aq.swType) {
		return fmt.Errorf("unknown software_type %q", aq.swType)
	}
	return nil
}

func (s *Server) fieldNotices(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	q := parseAlertQuery(r.URL.Query())
	if err := q.validate(snap); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(noticesFor(snap, q), params))
}

func (s *Server) eolBulletins(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	q := parseAlertQuery(r.URL.Query())
	if err := q.validate(snap); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(entriesFor(snap, q), params))
}

func (s *Server) softwareTypes(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(snap.SoftwareTypes(), params))
}

func noticesFor(snap *index.Index, q alertQuery) []alerts.Notice {
	if q.empty() {
		return snap.Notices()
	}
	var passes [][]alerts.Notice
	if q.productID != "" {
		passes = append(passes, snap.NoticesByProduct(q.productID))
	}
	if q.productName != "" {
		passes = append(passes, snap.NoticesByProduct(q.productName))
	}
	if q.swType != "" {
		passes = append(passes, snap.NoticesBySoftware(q.swType, q.swVersion))
	}
	return mergeByURL(passes, func(n alerts.Notice) string { return n.URL })
}

func entriesFor(snap *index.Index, q alertQuery) []alerts.EndOfLifeEntry {
	if q.empty() {
		return snap.EOLEntries()
	}
	var passes [][]alerts.EndOfLifeEntry
	if q.productID != "" {
		passes = append(passes, snap.EOLEntriesByProduct(q.productID))
	}
	if q.productName != "" {
		passes = append(passes, snap.EOLEntriesByProduct(q.productName))
	}
	if q.swType != "" {
		passes = append(passes, snap.EOLEntriesBySoftware(q.swType, q.swVersion))
	}
	return mergeByURL(passes, func(e alerts.EndOfLifeEntry) string { return e.URL })
}

// mergeByURL unions filter passes, keeping the first occurrence of each
// URL in pass-then-source order.
func mergeByURL[T any](passes [][]T, url func(T) string) []T {
	out := []T{}
	seen := make(map[string]struct{})
	for _, pass := range passes {
		for _, item := range pass {
			u := url(item)
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
