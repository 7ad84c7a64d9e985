package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"growpilot/internal/barcode"
	"growpilot/internal/core"
	"growpilot/internal/session"
	"growpilot/pkg/domain"
)

type navItem struct {
	Page   core.Page
	Title  string
	Active bool
}

type exportLink struct {
	Category domain.Category
	Count    int
}

type pageData struct {
	Page       core.Page
	Title      string
	Nav        []navItem
	Flash      string
	Warning    string
	Error      string
	Today      string
	Plants     []string
	Form       url.Values
	Dashboard  core.Dashboard
	Exports    []exportLink
	Archive    bool
	ChartStamp int
}

var successMessages = map[core.Page]string{
	core.PageLogWatering:  "Watering saved.",
	core.PageLogNutrients: "Nutrient recorded.",
	core.PageLogHarvest:   "Harvest added.",
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	s.showPage(w, r, core.PageDashboard)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := core.ParsePage(r.PathValue("page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.showPage(w, r, page)
}

func (s *Server) showPage(w http.ResponseWriter, r *http.Request, page core.Page) {
	sess, err := s.currentSession(r.Context(), w, r)
	if err != nil {
		s.internalError(w, "open session", err)
		return
	}
	s.renderPage(w, r, sess, page, http.StatusOK, pageData{Flash: r.URL.Query().Get("flash")})
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error(what+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// handleSubmit applies a form and redirects with a flash message; validation
// failures re-render the form with the submitted values.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	page, err := core.ParsePage(r.PathValue("page"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sess, err := s.currentSession(r.Context(), w, r)
	if err != nil {
		s.internalError(w, "open session", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, r, sess, page, http.StatusBadRequest, pageData{Error: "Could not read the form."})
		return
	}
	action, err := actionFromForm(page, r.PostForm)
	if err == nil {
		err = sess.Do(func(store core.RecordStore) error {
			_, err := s.svc.Apply(r.Context(), store, action)
			return err
		})
	}
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("form submit failed", "page", page, "error", err)
		}
		s.renderPage(w, r, sess, page, status, pageData{Error: userMessage(err), Form: r.PostForm})
		return
	}
	msg, ok := successMessages[page]
	if a, isPlant := action.(core.AddPlant); isPlant {
		msg, ok = "Added "+a.Name, true
	}
	target := "/pages/" + string(page)
	if ok {
		target += "?flash=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// scanFormFields are carried from the nutrient form through a barcode scan.
var scanFormFields = []string{"plant", "date", "product", "notes"}

// handleScanPage reads a barcode photo and re-renders the nutrient form with
// the product pre-filled.
func (s *Server) handleScanPage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.currentSession(r.Context(), w, r)
	if err != nil {
		s.internalError(w, "open session", err)
		return
	}
	res, err := s.scan(r)
	data := pageData{Form: url.Values{}}
	for _, field := range scanFormFields {
		if v := r.PostForm.Get(field); v != "" {
			data.Form.Set(field, v)
		}
	}
	switch {
	case err == nil:
		data.Form.Set("product", res.Text)
		data.Flash = "Scanned " + res.Format + " barcode."
	case errors.Is(err, barcode.ErrNoBarcode):
		data.Warning = "No barcode found in that photo. Enter the product by hand."
	default:
		data.Warning = userMessage(err)
	}
	s.renderPage(w, r, sess, core.PageLogNutrients, http.StatusOK, data)
}

func actionFromForm(page core.Page, form url.Values) (core.Action, error) {
	switch page {
	case core.PageAddPlant:
		date, err := core.ParseFormDate(form.Get("date_planted"))
		if err != nil {
			return nil, err
		}
		return core.AddPlant{Name: form.Get("name"), DatePlanted: date}, nil
	case core.PageLogWatering:
		date, err := core.ParseFormDate(form.Get("date"))
		if err != nil {
			return nil, err
		}
		liters, err := core.ParseFormAmount(domain.FieldLiters, form.Get("liters"))
		if err != nil {
			return nil, err
		}
		return core.LogWatering{Plant: form.Get("plant"), Date: date, Liters: liters}, nil
	case core.PageLogNutrients:
		date, err := core.ParseFormDate(form.Get("date"))
		if err != nil {
			return nil, err
		}
		return core.LogNutrients{Plant: form.Get("plant"), Date: date, Product: form.Get("product"), Notes: form.Get("notes")}, nil
	case core.PageLogHarvest:
		date, err := core.ParseFormDate(form.Get("date"))
		if err != nil {
			return nil, err
		}
		grams, err := core.ParseFormAmount(domain.FieldGrams, form.Get("grams"))
		if err != nil {
			return nil, err
		}
		return core.LogHarvest{Plant: form.Get("plant"), Date: date, Grams: grams}, nil
	default:
		return nil, fmt.Errorf("%w: this page has no form", core.ErrValidation)
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrNoPlants):
		return "Add a plant before logging activity."
	case errors.Is(err, core.ErrUnknownPlant):
		return "That plant is not in your plant list."
	case statusFor(err) == http.StatusInternalServerError:
		return "Something went wrong. Your previous entries are unchanged."
	default:
		return strings.TrimPrefix(err.Error(), core.ErrValidation.Error()+": ")
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, sess *session.Session, page core.Page, status int, data pageData) {
	data.Page = page
	data.Title = page.Title()
	data.Archive = s.archive && s.exporter.ArchiveEnabled()
	for _, p := range core.Pages() {
		data.Nav = append(data.Nav, navItem{Page: p, Title: p.Title(), Active: p == page})
	}
	if data.Form == nil {
		data.Form = url.Values{}
	}
	err := sess.Do(func(store core.RecordStore) error {
		data.Today = s.svc.Today().Format(domain.DateLayout)
		plants, err := s.svc.PlantNames(r.Context(), store)
		if err != nil {
			return err
		}
		data.Plants = plants
		switch page {
		case core.PageDashboard:
			dash, err := s.svc.Dashboard(r.Context(), store)
			if err != nil {
				return err
			}
			data.Dashboard = dash
			data.ChartStamp = dash.Counts[domain.CategoryHarvests]
		case core.PageExport:
			counts, err := store.Counts(r.Context())
			if err != nil {
				return err
			}
			for _, c := range domain.Categories() {
				data.Exports = append(data.Exports, exportLink{Category: c, Count: counts[c]})
			}
		}
		return nil
	})
	if err != nil {
		s.internalError(w, "load page "+string(page), err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.render(w, page, data); err != nil {
		s.logger.Error("template failed", "page", page, "error", err)
	}
}

