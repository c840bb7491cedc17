package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/archive"
	"github.com/ciscoinsights/device-insights/internal/features"
)

const defaultPlatformChoice = "Switches"

func (s *Server) platformFeatures(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	platformID, ok := s.intQueryParam(w, r.URL.Query(), "platform_id")
	if !ok {
		return
	}
	releaseID, ok := s.intQueryParam(w, r.URL.Query(), "release_id")
	if !ok {
		return
	}
	feats, err := s.features.PlatformFeatures(platformID, releaseID)
	if err != nil {
		s.featureError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(feats, params))
}

func (s *Server) platforms(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	choice := r.URL.Query().Get("platform_choice")
	if choice == "" {
		choice = defaultPlatformChoice
	}
	if !features.IsPlatformType(choice) {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown platform_choice %q", choice))
		return
	}
	platforms, err := s.features.Platforms(choice, r.URL.Query().Get("by_name"))
	if err != nil {
		s.featureError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(platforms, params))
}

func (s *Server) releases(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	platformID, ok := s.intQueryParam(w, r.URL.Query(), "platform_id")
	if !ok {
		return
	}
	rels, err := s.features.Releases(platformID)
	if err != nil {
		s.featureError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paginate(rels, params))
}

// intQueryParam reads a required integer query parameter, writing the
// error response itself when the parameter is missing or malformed.
func (s *Server) intQueryParam(w http.ResponseWriter, q url.Values, name string) (int, bool) {
	raw := q.Get(name)
	if raw == "" {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s is required", name))
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return n, true
}

// featureError maps feature store failures onto API statuses: a missing
// or corrupt archive is a transient not-ready condition, anything else
// is a server error.
func (s *Server) featureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, archive.ErrArchiveNotFound), errors.Is(err, archive.ErrArchiveCorrupt):
		s.writeNotReady(w, "feature data is not ready yet")
	default:
		s.logger.Error("feature lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "feature lookup failed")
	}
}
