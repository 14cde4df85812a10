package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/yourusername/strategy-lab/internal/jobs"
	"github.com/yourusername/strategy-lab/internal/service"
)

// Iterations run when a refine request leaves max_iterations unset.
const defaultRefineIterations = 2

// Jobs run detached from the request context: a closed client connection
// must not cancel a backtest already in flight.
func (s *Server) createJob(w http.ResponseWriter, kind string, fn jobs.JobFunc) {
	job := s.registry.Create(context.Background(), kind, fn)
	writeJSON(w, map[string]string{"job_id": job.ID()})
}

func (s *Server) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	var req service.BacktestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.createJob(w, jobs.KindBacktest, func(ctx context.Context, job *jobs.Job) (map[string]interface{}, error) {
		report, err := s.service.ManualBacktest(ctx, req, job.AppendLog)
		if err != nil {
			return nil, err
		}
		return service.ToDocument(report)
	})
}

func (s *Server) handleBacktestAnalyze(w http.ResponseWriter, r *http.Request) {
	var req service.AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.createJob(w, jobs.KindAnalysis, func(ctx context.Context, job *jobs.Job) (map[string]interface{}, error) {
		report, err := s.service.AnalyzeResult(ctx, req, job.AppendLog)
		if err != nil {
			return nil, err
		}
		return service.ToDocument(report)
	})
}

func (s *Server) handleRefineRun(w http.ResponseWriter, r *http.Request) {
	var req service.RefineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = defaultRefineIterations
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.createJob(w, jobs.KindRefine, func(ctx context.Context, job *jobs.Job) (map[string]interface{}, error) {
		report, err := s.service.RefineLoop(ctx, req, job.AppendLog)
		if err != nil {
			return nil, err
		}
		return service.ToDocument(report)
	})
}

func (s *Server) handleScenariosRun(w http.ResponseWriter, r *http.Request) {
	var req service.ScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.createJob(w, jobs.KindScenarioAnalysis, func(ctx context.Context, job *jobs.Job) (map[string]interface{}, error) {
		report, err := s.service.ScenarioAnalysis(ctx, req, job.AppendLog)
		if err != nil {
			return nil, err
		}
		return service.ToDocument(report)
	})
}

func (s *Server) handleDataDownload(w http.ResponseWriter, r *http.Request) {
	var req service.DownloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.createJob(w, jobs.KindDownloadData, func(ctx context.Context, job *jobs.Job) (map[string]interface{}, error) {
		report, err := s.service.DownloadData(ctx, req, job.AppendLog)
		if err != nil {
			return nil, err
		}
		return service.ToDocument(report)
	})
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"jobs": s.registry.List()})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, job.Snapshot())
}

func (s *Server) handleHistoryRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"runs": runs})
}

func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "run_id must be a positive integer")
		return
	}

	run, err := s.service.GetRun(r.Context(), runID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req service.FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.service.RecordFeedback(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true, "feedback_id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.service.Suggestions(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, report)
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
