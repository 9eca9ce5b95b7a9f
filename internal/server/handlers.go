package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/render"
	"github.com/raphaelgruber/portal-go/internal/service"
	"github.com/raphaelgruber/portal-go/internal/store"
)

// Page handlers answer 200 with the view state, carrying an error panel
// when inference failed. Only malformed input and missing records are
// reported as HTTP errors.

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var sel prompt.MarketSelection
	if err := decode(r, &sel); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Markets.Forecast(r.Context(), scope(r), sel)
	s.writePage(w, r, page, err)
}

// StocksRequest asks for a stock analysis filtered by a preset.
type StocksRequest struct {
	prompt.StockSelection
	Filter string `json:"filter,omitempty"`
}

func (s *Server) handleStocksAnalyze(w http.ResponseWriter, r *http.Request) {
	var req StocksRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Stocks.Analyze(r.Context(), scope(r), req.StockSelection, req.Filter)
	s.writePage(w, r, page, err)
}

// FilterRequest re-filters stocks, or the scope's last analysis when
// Stocks is omitted.
type FilterRequest struct {
	Filter string         `json:"filter"`
	Stocks []render.Stock `json:"stocks,omitempty"`
}

func (s *Server) handleStocksFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Stocks.Filter(scope(r), req.Filter, req.Stocks)
	s.writePage(w, r, page, err)
}

func (s *Server) handleStocksPresets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Stocks.Presets())
}

func (s *Server) handleLearningPath(w http.ResponseWriter, r *http.Request) {
	var sel prompt.LearningSelection
	if err := decode(r, &sel); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Learning.Path(r.Context(), scope(r), sel)
	s.writePage(w, r, page, err)
}

// IdeasRequest asks for episode suggestions.
type IdeasRequest struct {
	Interest string `json:"interest"`
	Count    int    `json:"count,omitempty"`
}

func (s *Server) handleLearningIdeas(w http.ResponseWriter, r *http.Request) {
	var req IdeasRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Learning.Ideas(r.Context(), scope(r), req.Interest, req.Count)
	s.writePage(w, r, page, err)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Chat.Send(r.Context(), scope(r), req)
	s.writePage(w, r, page, err)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	convs, err := s.svc.Chat.Conversations(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Chat.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req service.DraftRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.svc.Comms.Draft(r.Context(), scope(r), req)
	s.writePage(w, r, page, err)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Runner.Retry(r.Context(), r.PathValue("key"))
	s.writePage(w, r, page, err)
}

type closeScopeResponse struct {
	Cancelled int `json:"cancelled"`
}

func (s *Server) handleCloseScope(w http.ResponseWriter, r *http.Request) {
	n := s.svc.Runner.CloseScope(r.PathValue("scope"))
	s.writeJSON(w, http.StatusOK, closeScopeResponse{Cancelled: n})
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, page any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Records.Kinds())
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := store.ListOptions{Sort: r.URL.Query().Get("sort"), Limit: limit}
	recs, err := s.svc.Records.List(r.Context(), r.PathValue("kind"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.Records.Create(r.Context(), r.PathValue("kind"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Records.Delete(r.Context(), r.PathValue("kind"), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

func readBody(r *http.Request) ([]byte, error) {
	var raw rawBody
	if err := decode(r, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", models.ErrInvalidRecord)
	}
	return raw, nil
}

// rawBody keeps a validated JSON body as-is.
type rawBody []byte

func (b *rawBody) UnmarshalJSON(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}
