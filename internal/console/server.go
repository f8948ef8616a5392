// Package console serves the token administration page and its JSON API.
package console

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"solana-token-console/internal/auth"
	"solana-token-console/internal/domain"
	"solana-token-console/internal/mutation"
	"solana-token-console/internal/observability"
	"solana-token-console/internal/storage"
	"solana-token-console/internal/wallet"
)

//go:embed templates/*.html
var templateFS embed.FS

// activityLimit is how many recent activities the page shows.
const activityLimit = 10

// Mutator is the mutation surface the console drives.
type Mutator interface {
	CreateToken(ctx context.Context, signer wallet.Wallet, props domain.TokenProperties) (*mutation.Submission, error)
	UpdateToken(ctx context.Context, signer wallet.Wallet, mint solana.PublicKey, props domain.TokenProperties) (*mutation.Submission, error)
}

// Server wires the wallet adapter, page model, dialog and mutation service
// to HTTP.
type Server struct {
	adapter  *wallet.Adapter
	wallet   wallet.Wallet
	state    *auth.State
	page     *Page
	dialog   *Dialog
	mutator  Mutator
	activity storage.ActivityStore
	sessions *Sessions
	password []byte // bcrypt hash
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *log.Logger
	tmpl     *template.Template
	started  time.Time
	router   *mux.Router
}

// Options configures a Server.
type Options struct {
	Adapter       *wallet.Adapter
	Wallet        wallet.Wallet // connected by POST /wallet/connect
	Lister        Lister
	Mutator       Mutator
	Activity      storage.ActivityStore // optional
	SessionSecret []byte
	SessionTTL    time.Duration
	// PasswordHash is the bcrypt hash of the operator password that
	// POST /wallet/connect requires.
	PasswordHash []byte
	// SubmitTimeout bounds a dialog submission, which runs detached from
	// the browser request. Defaults to DefaultSubmitTimeout.
	SubmitTimeout time.Duration
	Metrics       *observability.Metrics
	Logger        *log.Logger
}

// DefaultSubmitTimeout covers signing, sending, confirmation and the
// follow-up refresh of one submission.
const DefaultSubmitTimeout = mutation.DefaultConfirmTimeout + 30*time.Second

// HashPassword returns the bcrypt hash of an operator password.
func HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("console: empty password")
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// NewServer creates the console. Background fetches run under ctx.
func NewServer(ctx context.Context, opts Options) (*Server, error) {
	if opts.Adapter == nil || opts.Wallet == nil || opts.Lister == nil || opts.Mutator == nil {
		return nil, errors.New("console: adapter, wallet, lister and mutator are required")
	}
	if _, err := bcrypt.Cost(opts.PasswordHash); err != nil {
		return nil, fmt.Errorf("console: operator password hash: %w", err)
	}
	sessions, err := NewSessions(opts.SessionSecret, opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("console: parse templates: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[console] ", log.LstdFlags)
	}
	timeout := opts.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}

	s := &Server{
		adapter:  opts.Adapter,
		wallet:   opts.Wallet,
		state:    opts.Adapter.State(),
		mutator:  opts.Mutator,
		activity: opts.Activity,
		sessions: sessions,
		password: opts.PasswordHash,
		timeout:  timeout,
		metrics:  opts.Metrics,
		logger:   logger,
		tmpl:     tmpl,
		started:  time.Now(),
	}
	s.page = NewPage(ctx, s.state, opts.Lister, logger, opts.Metrics)
	s.dialog = NewDialog(s.complete)
	s.router = s.routes()

	// A disconnect closes any open dialog.
	s.state.Subscribe(func(snap auth.Snapshot) {
		if !snap.Authenticated {
			s.dialog.Close()
		}
	})
	return s, nil
}

// Page returns the token list model.
func (s *Server) Page() *Page {
	return s.page
}

// Dialog returns the edit dialog.
func (s *Server) Dialog() *Dialog {
	return s.dialog
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/wallet/connect", s.handleConnect).Methods(http.MethodPost)
	r.HandleFunc("/wallet/disconnect", s.requireSession(s.handleDisconnect)).Methods(http.MethodPost)
	r.HandleFunc("/tokens/new", s.requireSession(s.handleNewToken)).Methods(http.MethodPost)
	r.HandleFunc("/tokens/refresh", s.requireSession(s.handleRefresh)).Methods(http.MethodPost)
	r.HandleFunc("/tokens/{mint}/edit", s.requireSession(s.handleEditToken)).Methods(http.MethodPost)
	r.HandleFunc("/dialog/cancel", s.requireSession(s.handleDialogCancel)).Methods(http.MethodPost)
	r.HandleFunc("/dialog/submit", s.requireSession(s.handleDialogSubmit)).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tokens", s.requireSession(s.handleAPITokens)).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.requireSession(s.handleAPIActivity)).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// complete is the dialog completion callback: it submits the mutation with
// the session signer and re-fetches the listing.
func (s *Server) complete(ctx context.Context, sub DialogSubmission) error {
	signer, err := s.adapter.Signer()
	if err != nil {
		return err
	}

	var result *mutation.Submission
	switch sub.Mode {
	case DialogCreate:
		result, err = s.mutator.CreateToken(ctx, signer, sub.Props)
	case DialogEdit:
		result, err = s.mutator.UpdateToken(ctx, signer, sub.Mint, sub.Props)
	default:
		return ErrDialogClosed
	}
	if err != nil {
		return err
	}
	s.logger.Printf("%s %s confirmed: %s", sub.Mode, result.Mint, result.ExplorerURL)

	if err := s.page.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("refresh after %s: %w", sub.Mode, err)
	}
	return nil
}

type indexView struct {
	PageView
	Session   bool
	Dialog    DialogView
	Activity  []*domain.Activity
	Economics *mutation.Economics
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := indexView{Session: s.session(r) != nil}
	if view.Session {
		view.PageView = s.page.View()
		view.Dialog = s.dialog.View()
		view.Activity = s.recentActivity(r.Context(), view.Snapshot.Identity)
		if e, ok := s.mutator.(interface{ Economics() mutation.Economics }); ok {
			econ := e.Economics()
			view.Economics = &econ
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", view); err != nil {
		s.logger.Printf("render index: %v", err)
	}
}

func (s *Server) recentActivity(ctx context.Context, identity solana.PublicKey) []*domain.Activity {
	if s.activity == nil {
		return nil
	}
	acts, err := s.activity.ListByIdentity(ctx, identity.String(), activityLimit)
	if err != nil {
		s.logger.Printf("list activity: %v", err)
		return nil
	}
	return acts
}

// handleConnect checks the operator password and starts a new session. A
// login while connected reconnects, which invalidates every earlier cookie.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if err := bcrypt.CompareHashAndPassword(s.password, []byte(r.PostFormValue("password"))); err != nil {
		s.logger.Printf("connect rejected from %s", r.RemoteAddr)
		clearSessionCookie(w)
		http.Error(w, "invalid operator password", http.StatusUnauthorized)
		return
	}

	if s.state.IsAuthenticated() {
		s.adapter.Disconnect()
	}
	s.adapter.Connect(s.wallet)
	s.page.Wait()
	if err := s.setSessionCookie(w, s.state.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.redirectHome(w, r)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.adapter.Disconnect()
	clearSessionCookie(w)
	s.redirectHome(w, r)
}

func (s *Server) handleNewToken(w http.ResponseWriter, r *http.Request) {
	if err := s.dialog.OpenCreate(); err != nil {
		s.page.SetBanner(err.Error())
	}
	s.redirectHome(w, r)
}

func (s *Server) handleEditToken(w http.ResponseWriter, r *http.Request) {
	mint, err := solana.PublicKeyFromBase58(mux.Vars(r)["mint"])
	if err != nil {
		http.Error(w, "invalid mint address", http.StatusBadRequest)
		return
	}
	rec, ok := s.page.Find(mint)
	if !ok {
		http.Error(w, "token not listed", http.StatusNotFound)
		return
	}
	if err := s.dialog.OpenEdit(rec); err != nil {
		s.page.SetBanner(err.Error())
	}
	s.redirectHome(w, r)
}

func (s *Server) handleDialogCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.dialog.Cancel(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.redirectHome(w, r)
}

func (s *Server) handleDialogSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	props, err := parseProperties(r)
	if err != nil {
		s.page.SetBanner(err.Error())
		s.redirectHome(w, r)
		return
	}

	// The transaction may land after the browser goes away; its outcome is
	// recorded either way.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
	defer cancel()
	err = s.dialog.Submit(ctx, props)
	switch {
	case errors.Is(err, ErrDialogClosed):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.logger.Printf("submit: %v", err)
		s.page.SetBanner(err.Error())
	}
	s.redirectHome(w, r)
}

// parseProperties reads the dialog form. An empty fee field leaves Fee nil.
func parseProperties(r *http.Request) (domain.TokenProperties, error) {
	props := domain.TokenProperties{
		Name:   strings.TrimSpace(r.PostFormValue("name")),
		Symbol: strings.TrimSpace(r.PostFormValue("symbol")),
		URI:    strings.TrimSpace(r.PostFormValue("uri")),
	}
	if raw := strings.TrimSpace(r.PostFormValue("fee")); raw != "" {
		fee, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return props, fmt.Errorf("%w: fee %q is not a number", mutation.ErrInvalidProperties, raw)
		}
		props.Fee = &fee
	}
	return props, nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.page.Refresh(r.Context()); err != nil {
		s.logger.Printf("refresh: %v", err)
	}
	s.redirectHome(w, r)
}

// TokenResponse is one row of GET /api/tokens. The pending fee fields are
// set while a new fee waits for its epoch.
type TokenResponse struct {
	Account           string   `json:"account"`
	Mint              string   `json:"mint"`
	Name              string   `json:"name"`
	Symbol            string   `json:"symbol"`
	URI               string   `json:"uri"`
	Balance           uint64   `json:"balance"`
	Decimals          uint8    `json:"decimals"`
	Supply            uint64   `json:"supply"`
	FeePercent        *float64 `json:"fee_percent,omitempty"`
	MaxFee            *uint64  `json:"max_fee,omitempty"`
	PendingFeePercent *float64 `json:"pending_fee_percent,omitempty"`
	PendingFeeEpoch   *uint64  `json:"pending_fee_epoch,omitempty"`
	Authorities       string   `json:"authorities"`
}

// TokensResponse is the JSON response for GET /api/tokens.
type TokensResponse struct {
	Identity string          `json:"identity"`
	Loading  bool            `json:"loading"`
	Tokens   []TokenResponse `json:"tokens"`
	Failures []string        `json:"failures,omitempty"`
}

func (s *Server) handleAPITokens(w http.ResponseWriter, r *http.Request) {
	view := s.page.View()
	resp := TokensResponse{
		Identity: view.Snapshot.Identity.String(),
		Loading:  view.Loading,
		Tokens:   make([]TokenResponse, 0, len(view.Tokens)),
	}
	for _, rec := range view.Tokens {
		row := TokenResponse{
			Account:     rec.Account.String(),
			Mint:        rec.Mint.String(),
			Balance:     rec.Balance,
			Decimals:    rec.Decimals,
			Supply:      rec.Supply,
			Authorities: rec.AuthorityLabel(),
		}
		if rec.Metadata != nil {
			row.Name, row.Symbol, row.URI = rec.Metadata.Name, rec.Metadata.Symbol, rec.Metadata.URI
		}
		if rec.TransferFee != nil {
			pct := rec.TransferFee.Percent()
			maxFee := rec.TransferFee.MaximumFee
			row.FeePercent, row.MaxFee = &pct, &maxFee
		}
		if rec.PendingFee != nil {
			pct := rec.PendingFee.Percent()
			epoch := rec.PendingFee.Epoch
			row.PendingFeePercent, row.PendingFeeEpoch = &pct, &epoch
		}
		resp.Tokens = append(resp.Tokens, row)
	}
	for _, f := range view.Failures {
		resp.Failures = append(resp.Failures, f.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIActivity(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	if s.activity == nil {
		writeJSON(w, http.StatusOK, []*domain.Activity{})
		return
	}
	limit := activityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var acts []*domain.Activity
	var err error
	if raw := r.URL.Query().Get("mint"); raw != "" {
		mint, perr := solana.PublicKeyFromBase58(raw)
		if perr != nil {
			http.Error(w, "invalid mint address", http.StatusBadRequest)
			return
		}
		acts, err = s.mintActivity(r.Context(), mint, claims.Subject, limit)
	} else {
		acts, err = s.activity.ListByIdentity(r.Context(), claims.Subject, limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if acts == nil {
		acts = []*domain.Activity{}
	}
	writeJSON(w, http.StatusOK, acts)
}

// mintActivity returns identity's activity on mint, newest first.
func (s *Server) mintActivity(ctx context.Context, mint solana.PublicKey, identity string, limit int) ([]*domain.Activity, error) {
	all, err := s.activity.ListByMint(ctx, mint.String())
	if err != nil {
		return nil, err
	}
	var out []*domain.Activity
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].Identity == identity {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Authenticated bool   `json:"authenticated"`
	Generation    uint64 `json:"generation"`
	Tokens        int    `json:"tokens"`
	Dialog        string `json:"dialog"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := s.page.View()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Authenticated: view.Snapshot.Authenticated,
		Generation:    view.Snapshot.Generation,
		Tokens:        len(view.Tokens),
		Dialog:        s.dialog.View().Mode.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

var templateFuncs = template.FuncMap{
	"short": func(pk solana.PublicKey) string {
		s := pk.String()
		if len(s) <= 10 {
			return s
		}
		return s[:4] + "…" + s[len(s)-4:]
	},
	"fee": func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	},
	"millis": func(ms int64) string {
		return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
	},
}
