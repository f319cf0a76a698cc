package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
	"telegram-referral-rewards/internal/usecase"
)

// ---- wire types ----

type Error struct {
	Error string `json:"error"`
}

type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	Status       string    `json:"status"`
	Stars        int64     `json:"stars"`
	Invited      int64     `json:"invited"`
	CanWithdraw  bool      `json:"can_withdraw"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	Funnel       Funnel    `json:"funnel"`
}

type Funnel struct {
	CandidateID int64      `json:"candidate_id"`
	Stage       string     `json:"stage"`
	InviterID   int64      `json:"inviter_id,omitempty"`
	CreditedVia string     `json:"credited_via,omitempty"`
	CreditedAt  *time.Time `json:"credited_at,omitempty"`
}

type Code struct {
	Code        string `json:"code"`
	Stars       int64  `json:"stars"`
	Policy      string `json:"policy"`
	Limit       int    `json:"limit,omitempty"`
	Activations int    `json:"activations"`
}

type Channel struct {
	ChatID   int64  `json:"chat_id"`
	Link     string `json:"link"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type Withdrawal struct {
	ID         string     `json:"id"`
	AccountID  int64      `json:"account_id"`
	Amount     int64      `json:"amount"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type Stats struct {
	Ledger      usecase.LedgerStats `json:"ledger"`
	Rate        int64               `json:"stars_per_referral"`
	TopInviters []TopInviter        `json:"top_inviters"`
}

type TopInviter struct {
	InviterID int64  `json:"inviter_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

type CreateCodeRequest struct {
	Code   string `json:"code"`
	Stars  int64  `json:"stars"`
	Policy string `json:"policy"`
	Limit  int    `json:"limit"`
}

type ChannelRequest struct {
	ChatID int64  `json:"chat_id"`
	Link   string `json:"link"`
	Name   string `json:"name"`
}

type RateRequest struct {
	Stars int64 `json:"stars"`
}

type AddStarsRequest struct {
	Amount int64 `json:"amount"`
}

// ServerInterface lists every admin endpoint.
type ServerInterface interface {
	GetStats(w http.ResponseWriter, r *http.Request)
	GetAccount(w http.ResponseWriter, r *http.Request, id int64)
	AddStars(w http.ResponseWriter, r *http.Request, id int64)
	GetFunnel(w http.ResponseWriter, r *http.Request, id int64)
	ResetCredited(w http.ResponseWriter, r *http.Request)
	ListCodes(w http.ResponseWriter, r *http.Request)
	CreateCode(w http.ResponseWriter, r *http.Request)
	ListChannels(w http.ResponseWriter, r *http.Request)
	AddChannel(w http.ResponseWriter, r *http.Request)
	EditChannel(w http.ResponseWriter, r *http.Request, chatID int64)
	RemoveChannel(w http.ResponseWriter, r *http.Request, chatID int64)
	GetRate(w http.ResponseWriter, r *http.Request)
	SetRate(w http.ResponseWriter, r *http.Request)
	ListWithdrawals(w http.ResponseWriter, r *http.Request)
	ApproveWithdrawal(w http.ResponseWriter, r *http.Request, id string)
	RejectWithdrawal(w http.ResponseWriter, r *http.Request, id string)
}

var _ ServerInterface = (*Server)(nil)

// RegisterAPIV1 mounts the admin endpoints on r under absolute /api/v1 paths.
func RegisterAPIV1(r chi.Router, si ServerInterface) {
	r.Get("/api/v1/stats", si.GetStats)
	r.Get("/api/v1/accounts/{id}", withInt64Path("id", si.GetAccount))
	r.Post("/api/v1/accounts/{id}/stars", withInt64Path("id", si.AddStars))
	r.Get("/api/v1/funnels/{id}", withInt64Path("id", si.GetFunnel))
	r.Post("/api/v1/referrals/reset-credited", si.ResetCredited)
	r.Get("/api/v1/codes", si.ListCodes)
	r.Post("/api/v1/codes", si.CreateCode)
	r.Get("/api/v1/channels", si.ListChannels)
	r.Post("/api/v1/channels", si.AddChannel)
	r.Put("/api/v1/channels/{chat_id}", withInt64Path("chat_id", si.EditChannel))
	r.Delete("/api/v1/channels/{chat_id}", withInt64Path("chat_id", si.RemoveChannel))
	r.Get("/api/v1/settings/rate", si.GetRate)
	r.Put("/api/v1/settings/rate", si.SetRate)
	r.Get("/api/v1/withdrawals", si.ListWithdrawals)
	r.Post("/api/v1/withdrawals/{id}/approve", withStringPath("id", si.ApproveWithdrawal))
	r.Post("/api/v1/withdrawals/{id}/reject", withStringPath("id", si.RejectWithdrawal))
}

func withInt64Path(name string, next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v int64
		err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Error{Error: "invalid format for parameter " + name})
			return
		}
		next(w, r, v)
	}
}

func withStringPath(name string, next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v string
		err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil || v == "" {
			writeJSON(w, http.StatusBadRequest, Error{Error: "invalid format for parameter " + name})
			return
		}
		next(w, r, v)
	}
}

// Server implements ServerInterface over the usecases. A nil usecase makes
// its endpoints answer 501.
type Server struct {
	referralUC usecase.ReferralUseCase
	rewardUC   usecase.RewardUseCase
	channelUC  usecase.ChannelUseCase
	statsUC    usecase.StatsUseCase
}

func NewServer(referralUC usecase.ReferralUseCase, rewardUC usecase.RewardUseCase, channelUC usecase.ChannelUseCase, statsUC usecase.StatsUseCase) *Server {
	return &Server{referralUC: referralUC, rewardUC: rewardUC, channelUC: channelUC, statsUC: statsUC}
}

func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	if s.statsUC == nil || s.referralUC == nil {
		notImplemented(w)
		return
	}
	top := 10
	if err := runtime.BindQueryParameter("form", true, false, "top", r.URL.Query(), &top); err != nil || top <= 0 {
		writeJSON(w, http.StatusBadRequest, Error{Error: "invalid format for parameter top"})
		return
	}
	rs := s.referralUC.Stats(r.Context(), top)
	out := Stats{Ledger: s.statsUC.Totals(r.Context()), Rate: rs.Rate, TopInviters: make([]TopInviter, 0, len(rs.TopInviters))}
	for _, e := range rs.TopInviters {
		out.TopInviters = append(out.TopInviters, TopInviter{InviterID: e.InviterID, Name: e.InviterName, Count: e.Count})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request, id int64) {
	if s.statsUC == nil {
		notImplemented(w)
		return
	}
	p, ok := s.statsUC.Profile(r.Context(), id)
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Account{
		ID:           p.Account.ID,
		Username:     p.Account.Username,
		DisplayName:  p.Account.DisplayName,
		Status:       string(p.Account.Status),
		Stars:        p.Account.Stars,
		Invited:      p.Invited,
		CanWithdraw:  p.CanWithdraw,
		RegisteredAt: p.Account.RegisteredAt,
		LastSeenAt:   p.Account.LastSeenAt,
		Funnel:       toFunnel(p.Funnel),
	})
}

func (s *Server) AddStars(w http.ResponseWriter, r *http.Request, id int64) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	var req AddStarsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bal, err := s.rewardUC.AddStars(r.Context(), id, req.Amount)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"account_id": id, "balance": bal})
}

func (s *Server) GetFunnel(w http.ResponseWriter, r *http.Request, id int64) {
	if s.referralUC == nil {
		notImplemented(w)
		return
	}
	writeJSON(w, http.StatusOK, toFunnel(s.referralUC.Funnel(r.Context(), id)))
}

func (s *Server) ResetCredited(w http.ResponseWriter, r *http.Request) {
	if s.referralUC == nil {
		notImplemented(w)
		return
	}
	n, err := s.referralUC.ResetCredited(r.Context())
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

func (s *Server) ListCodes(w http.ResponseWriter, r *http.Request) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	codes := s.rewardUC.ListCodes(r.Context())
	items := make([]Code, 0, len(codes))
	for _, c := range codes {
		items = append(items, toCode(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) CreateCode(w http.ResponseWriter, r *http.Request) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	var req CreateCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.rewardUC.CreateCode(r.Context(), req.Code, req.Stars, model.CodePolicy(req.Policy), req.Limit)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCode(c))
}

func (s *Server) ListChannels(w http.ResponseWriter, r *http.Request) {
	if s.channelUC == nil {
		notImplemented(w)
		return
	}
	chs := s.channelUC.List(r.Context())
	items := make([]Channel, 0, len(chs))
	for _, ch := range chs {
		items = append(items, toChannel(ch))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) AddChannel(w http.ResponseWriter, r *http.Request) {
	if s.channelUC == nil {
		notImplemented(w)
		return
	}
	var req ChannelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ch, err := s.channelUC.Add(r.Context(), req.ChatID, req.Link, req.Name)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChannel(*ch))
}

// EditChannel keeps fields left empty in the body; chat_id 0 keeps the id.
func (s *Server) EditChannel(w http.ResponseWriter, r *http.Request, chatID int64) {
	if s.channelUC == nil {
		notImplemented(w)
		return
	}
	var req ChannelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ch, err := s.channelUC.Edit(r.Context(), chatID, req.ChatID, req.Link, req.Name)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannel(*ch))
}

func (s *Server) RemoveChannel(w http.ResponseWriter, r *http.Request, chatID int64) {
	if s.channelUC == nil {
		notImplemented(w)
		return
	}
	if err := s.channelUC.Remove(r.Context(), chatID); err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetRate(w http.ResponseWriter, r *http.Request) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	writeJSON(w, http.StatusOK, RateRequest{Stars: s.rewardUC.RewardRate(r.Context())})
}

func (s *Server) SetRate(w http.ResponseWriter, r *http.Request) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	var req RateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.rewardUC.SetRewardRate(r.Context(), req.Stars); err != nil && !errors.Is(err, domain.ErrPersistence) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RateRequest{Stars: s.rewardUC.RewardRate(r.Context())})
}

func (s *Server) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	pending := false
	if err := runtime.BindQueryParameter("form", true, false, "pending", r.URL.Query(), &pending); err != nil {
		writeJSON(w, http.StatusBadRequest, Error{Error: "invalid format for parameter pending"})
		return
	}
	ws := s.rewardUC.ListWithdrawals(r.Context(), pending)
	items := make([]Withdrawal, 0, len(ws))
	for _, wd := range ws {
		items = append(items, toWithdrawal(wd))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) ApproveWithdrawal(w http.ResponseWriter, r *http.Request, id string) {
	s.resolveWithdrawal(w, r, id, true)
}

func (s *Server) RejectWithdrawal(w http.ResponseWriter, r *http.Request, id string) {
	s.resolveWithdrawal(w, r, id, false)
}

// resolveWithdrawal records operator 0 as the resolver for API calls.
func (s *Server) resolveWithdrawal(w http.ResponseWriter, r *http.Request, id string, approve bool) {
	if s.rewardUC == nil {
		notImplemented(w)
		return
	}
	resolve := s.rewardUC.RejectWithdrawal
	if approve {
		resolve = s.rewardUC.ApproveWithdrawal
	}
	wd, err := resolve(r.Context(), id, 0)
	if err != nil && (wd == nil || !errors.Is(err, domain.ErrPersistence)) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawal(wd))
}

// ---- helpers ----

func toFunnel(f model.Funnel) Funnel {
	return Funnel{
		CandidateID: f.CandidateID,
		Stage:       string(f.Stage),
		InviterID:   f.InviterID,
		CreditedVia: string(f.CreditedVia),
		CreditedAt:  f.CreditedAt,
	}
}

func toCode(c *model.RedeemableCode) Code {
	return Code{Code: c.Code, Stars: c.Stars, Policy: string(c.Policy), Limit: c.Cap, Activations: c.Activations}
}

func toChannel(ch model.RequiredChannel) Channel {
	return Channel{ChatID: ch.ChatID, Link: ch.Link, Name: ch.Name, Position: ch.Position}
}

func toWithdrawal(w *model.Withdrawal) Withdrawal {
	return Withdrawal{ID: w.ID, AccountID: w.AccountID, Amount: w.Amount, Status: string(w.Status), CreatedAt: w.CreatedAt, ResolvedAt: w.ResolvedAt}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		writeJSON(w, http.StatusBadRequest, Error{Error: "request body is required"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Error{Error: "invalid request body"})
		return false
	}
	return true
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), Error{Error: err.Error()})
}

func notImplemented(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotImplemented, Error{Error: "not implemented"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
