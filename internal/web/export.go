package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"growpilot/internal/adapters/export"
	"growpilot/internal/session"
	"growpilot/pkg/domain"
)

func splitFile(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// handleExport serves /export/<category>.<csv|json> as an attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	base, ext := splitFile(r.PathValue("file"))
	category, err := domain.ParseCategory(base)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format, err := export.ParseFormat(ext)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var (
		art       export.Artifact
		sessionID string
	)
	err = s.withSession(w, r, func(sess *session.Session) error {
		sessionID = sess.ID
		var err error
		art, err = s.exporter.Render(r.Context(), sess.Store(), category, format)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.archiveArtifact(w, r, sessionID, art)
	writeArtifact(w, art, true)
}

// handleChart serves /charts/<harvests|forecast>.png.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	base, ext := splitFile(r.PathValue("file"))
	kind := export.ChartKind(base)
	if ext != "png" || (kind != export.ChartHarvests && kind != export.ChartForecast) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown chart %q", r.PathValue("file")))
		return
	}
	var art export.Artifact
	err := s.withSession(w, r, func(sess *session.Session) error {
		dash, err := s.svc.Dashboard(r.Context(), sess.Store())
		if err != nil {
			return err
		}
		art, err = s.exporter.RenderChart(r.Context(), dash, kind)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeArtifact(w, art, false)
}

func (s *Server) archiveArtifact(w http.ResponseWriter, r *http.Request, sessionID string, art export.Artifact) {
	if !s.archive || !s.exporter.ArchiveEnabled() {
		return
	}
	info, err := s.exporter.Archive(r.Context(), sessionID, art)
	if err != nil {
		s.logger.Warn("export archive failed", "session", sessionID, "file", art.Filename, "error", err)
		return
	}
	w.Header().Set("X-Archive-Key", info.Key)
}

func writeArtifact(w http.ResponseWriter, art export.Artifact, attachment bool) {
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Payload)))
	if attachment {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Payload)
}

