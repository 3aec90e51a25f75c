package ui

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bschneidr/srvyr/app"
	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/design"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
	apperrors "github.com/bschneidr/srvyr/internal/errors"
)

// designRequest describes the design columns of the loaded table. Setting
// both subset fields nests the design as phase two of a two-phase sample.
type designRequest struct {
	Weights       string   `json:"weights"`
	Strata        string   `json:"strata"`
	IDs           string   `json:"ids"`
	RepWeightCols []string `json:"rep_weight_cols"`
	RepScale      float64  `json:"rep_scale"`
	DF            float64  `json:"df"`
	SubsetKeep    string   `json:"subset_keep"`
	SubsetProbs   string   `json:"subset_probs"`
}

// statisticRequest is the JSON form of one statistic in a batch
type statisticRequest struct {
	Name             string    `json:"name"`
	Kind             string    `json:"kind"`
	Variable         string    `json:"variable"`
	Denominator      string    `json:"denominator"`
	VarTypes         []string  `json:"vartypes"`
	Levels           []float64 `json:"levels"`
	NADrop           bool      `json:"na_drop"`
	Proportion       bool      `json:"proportion"`
	ProportionMethod string    `json:"prop_method"`
	Quantiles        []float64 `json:"quantiles"`
	IntervalType     string    `json:"interval_type"`
	QRule            string    `json:"qrule"`
	Deff             bool      `json:"deff"`
	DF               *float64  `json:"df"`
}

// estimateRequest is the POST /api/estimate body
type estimateRequest struct {
	Design     designRequest      `json:"design"`
	Groups     []string           `json:"groups"`
	Statistics []statisticRequest `json:"statistics"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	table := s.currentTable()
	if table == nil {
		writeError(w, apperrors.InvalidInput("no survey data loaded"))
		return
	}
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("malformed JSON body: "+err.Error()))
		return
	}

	d, err := buildDesign(table, req.Design)
	if err != nil {
		writeError(w, err)
		return
	}

	batch := app.BatchRequest{Groups: req.Groups}
	for _, sr := range req.Statistics {
		stat, err := toStatistic(sr)
		if err != nil {
			writeError(w, err)
			return
		}
		batch.Statistics = append(batch.Statistics, app.NamedStatistic{Name: sr.Name, Request: stat})
	}

	run, err := s.svc.Run(r.Context(), d, batch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	summaries, err := s.svc.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}
	run, err := s.svc.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}
	run, err := s.svc.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(RenderMarkdown(run)))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(RenderHTML(run))
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	table := s.currentTable()
	if table == nil {
		writeError(w, apperrors.InvalidInput("no survey data loaded"))
		return
	}
	type columnInfo struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	var cols []columnInfo
	for _, name := range table.Names() {
		col, _ := table.Column(name)
		cols = append(cols, columnInfo{Name: name, Type: col.Type.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": table.NumRows(), "columns": cols})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	table := s.currentTable()
	if table == nil {
		writeError(w, apperrors.InvalidInput("no survey data loaded"))
		return
	}
	profiles, err := s.reader.Profile(table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func buildDesign(table *frame.Table, dr designRequest) (*design.Design, error) {
	d, err := design.New(table, design.Spec{
		Weights:       dr.Weights,
		Strata:        dr.Strata,
		IDs:           dr.IDs,
		RepWeightCols: dr.RepWeightCols,
		RepScale:      dr.RepScale,
		DF:            dr.DF,
	})
	if err != nil {
		return nil, err
	}
	if dr.SubsetKeep == "" && dr.SubsetProbs == "" {
		return d, nil
	}
	if dr.SubsetKeep == "" || dr.SubsetProbs == "" {
		return nil, apperrors.InvalidInput("two-phase designs need both subset_keep and subset_probs")
	}

	keepCol, ok := table.Column(dr.SubsetKeep)
	if !ok || keepCol.Type != frame.Boolean {
		return nil, apperrors.InvalidInput("subset_keep must name a boolean column")
	}
	probsCol, ok := table.Column(dr.SubsetProbs)
	if !ok || probsCol.Type != frame.Numeric {
		return nil, apperrors.InvalidInput("subset_probs must name a numeric column")
	}
	return design.NewTwoPhase(d, keepCol.Bools, probsCol.Floats)
}

func toStatistic(sr statisticRequest) (statistic.Request, error) {
	kind, err := statistic.ParseKind(sr.Kind)
	if err != nil {
		return statistic.Request{}, err
	}
	vartypes, err := statistic.ParseVarTypes(sr.VarTypes, kind == statistic.Quantile)
	if err != nil {
		return statistic.Request{}, err
	}

	req := statistic.NewRequest(kind, sr.Variable)
	req.Denominator = sr.Denominator
	req.VarTypes = vartypes
	req.NADrop = sr.NADrop
	req.Proportion = sr.Proportion
	req.Deff = sr.Deff
	if len(sr.Levels) > 0 {
		req.Levels = sr.Levels
	}
	if sr.ProportionMethod != "" {
		req.ProportionMethod = sr.ProportionMethod
	}
	if len(sr.Quantiles) > 0 {
		req.Quantiles = sr.Quantiles
	}
	if sr.IntervalType != "" {
		req.IntervalType = sr.IntervalType
	}
	if sr.QRule != "" {
		req.QRule = sr.QRule
	}
	if sr.DF != nil {
		req.DF = *sr.DF
	}
	return req, nil
}

func runResponse(run *statistic.Run) map[string]any {
	results := make([]map[string]any, len(run.Results))
	for i, res := range run.Results {
		results[i] = map[string]any{"name": res.Name, "table": res.Table}
	}
	return map[string]any{
		"id":         run.ID,
		"created_at": run.CreatedAt,
		"groups":     run.Groups,
		"results":    results,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.CodeInvalidInput, apperrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	}
	if core.IsInvalidArgument(err) {
		status = http.StatusBadRequest
	}
	if core.IsNotFoundError(err) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
