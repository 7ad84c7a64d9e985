package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"growpilot/internal/barcode"
	"growpilot/internal/core"
	"growpilot/internal/session"
	"growpilot/pkg/domain"
)

type plantRequest struct {
	Name        string `json:"name"`
	DatePlanted string `json:"date_planted"`
}

type wateringRequest struct {
	Plant  string  `json:"plant"`
	Date   string  `json:"date"`
	Liters float64 `json:"liters"`
}

type nutrientRequest struct {
	Plant   string `json:"plant"`
	Date    string `json:"date"`
	Product string `json:"product"`
	Notes   string `json:"notes"`
}

type harvestRequest struct {
	Plant string  `json:"plant"`
	Date  string  `json:"date"`
	Grams float64 `json:"grams"`
}

type appendResponse struct {
	Category domain.Category   `json:"category"`
	Record   map[string]string `json:"record"`
	Columns  []string          `json:"columns"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", core.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleAddPlant(w http.ResponseWriter, r *http.Request) {
	var req plantRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := core.ParseFormDate(req.DatePlanted)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.apply(w, r, core.AddPlant{Name: req.Name, DatePlanted: date})
}

func (s *Server) handleLogWatering(w http.ResponseWriter, r *http.Request) {
	var req wateringRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := core.ParseFormDate(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.apply(w, r, core.LogWatering{Plant: req.Plant, Date: date, Liters: req.Liters})
}

func (s *Server) handleLogNutrients(w http.ResponseWriter, r *http.Request) {
	var req nutrientRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := core.ParseFormDate(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.apply(w, r, core.LogNutrients{Plant: req.Plant, Date: date, Product: req.Product, Notes: req.Notes})
}

func (s *Server) handleLogHarvest(w http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	date, err := core.ParseFormDate(req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.apply(w, r, core.LogHarvest{Plant: req.Plant, Date: date, Grams: req.Grams})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, action core.Action) {
	var rec core.Record
	err := s.withSession(w, r, func(sess *session.Session) error {
		var err error
		rec, err = s.svc.Apply(r.Context(), sess.Store(), action)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	columns := make([]string, len(rec))
	for i, f := range rec {
		columns[i] = f.Name
	}
	writeJSON(w, http.StatusCreated, appendResponse{Category: action.Category(), Record: rec.Map(), Columns: columns})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	category, err := domain.ParseCategory(r.PathValue("category"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var table core.Table
	err = s.withSession(w, r, func(sess *session.Session) error {
		var err error
		table, err = s.svc.Table(r.Context(), sess.Store(), category)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var dash core.Dashboard
	err := s.withSession(w, r, func(sess *session.Session) error {
		var err error
		dash, err = s.svc.Dashboard(r.Context(), sess.Store())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// handleBarcode decodes an uploaded image. A missing barcode is a warning,
// not a failure: the product field stays free text.
func (s *Server) handleBarcode(w http.ResponseWriter, r *http.Request) {
	res, err := s.scan(r)
	switch {
	case errors.Is(err, barcode.ErrNoBarcode):
		writeJSON(w, http.StatusOK, map[string]any{"warning": err.Error()})
	case err != nil:
		s.fail(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) scan(r *http.Request) (barcode.Result, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, barcode.DefaultMaxBytes+maxBodyBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		return barcode.Result{}, fmt.Errorf("%w: image upload required: %v", core.ErrValidation, err)
	}
	defer func() { _ = file.Close() }()
	return s.barcodes.Decode(r.Context(), file)
}

func (s *Server) handleArchived(w http.ResponseWriter, r *http.Request) {
	if !s.archive || !s.exporter.ArchiveEnabled() {
		writeError(w, http.StatusNotFound, "export archive disabled")
		return
	}
	sess, err := s.currentSession(r.Context(), w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	infos, err := s.exporter.Archived(r.Context(), sess.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": infos})
}
