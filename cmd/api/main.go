package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prestamax/loancore/pkg/config"
	"github.com/prestamax/loancore/pkg/ledger"
	"github.com/prestamax/loancore/pkg/models"
	"github.com/prestamax/loancore/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     *logrus.Logger
}

func NewServer(s store.Storage, log *logrus.Logger, cfg *config.Config) *Server {
	return &Server{
		ledger:  ledger.New(s, log, cfg.PenaltyRate, cfg.PenaltyCapPct),
		storage: s,
		log:     log,
	}
}

type createLoanRequest struct {
	ClientID     string           `json:"client_id"`
	Principal    decimal.Decimal  `json:"principal"`
	InterestRate decimal.Decimal  `json:"interest_rate"`
	RateBasis    models.RateBasis `json:"rate_basis"`
	Term         int              `json:"term"`
	OpenEnded    bool             `json:"open_ended"`
	StartDate    string           `json:"start_date"` // YYYY-MM-DD, defaults to today
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := today()
	if req.StartDate != "" {
		var err error
		if start, err = time.Parse(dateLayout, req.StartDate); err != nil {
			http.Error(w, "Invalid start_date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	// Legacy imports omit both fields; a missing or non-positive term
	// means the loan is open-ended.
	openEnded := req.OpenEnded || req.Term <= 0

	loan, err := s.ledger.CreateLoan(ledger.CreateLoanParams{
		ClientID:     req.ClientID,
		Principal:    req.Principal,
		InterestRate: req.InterestRate,
		RateBasis:    req.RateBasis,
		TermPeriods:  req.Term,
		OpenEnded:    openEnded,
		StartDate:    start,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		http.Error(w, "Invalid as_of, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.GetLoan(loanID, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}
	payments, err := s.ledger.ListPayments(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

type recordPaymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	DatePaid string          `json:"date_paid"` // YYYY-MM-DD, defaults to today
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	asOf, err := asOfParam(r)
	if err != nil {
		http.Error(w, "Invalid as_of, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	paidAt := asOf
	if req.DatePaid != "" {
		if paidAt, err = time.Parse(dateLayout, req.DatePaid); err != nil {
			http.Error(w, "Invalid date_paid, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	loan, payment, err := s.ledger.ApplyPayment(loanID, req.Amount, paidAt, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"loan":    loan,
		"payment": payment,
	})
}

func (s *Server) cancelLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.loanID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.Cancel(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) loanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var overflow *ledger.OverflowError
	switch {
	case errors.As(err, &overflow):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      overflow.Error(),
			"allocation": overflow.Allocation,
		})
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Loan not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "Loan was modified concurrently, retry the request", http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrLoanNotActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.WithError(err).Error("request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// asOfParam reads the optional as_of query parameter, defaulting to today.
// The core works in the caller's civil calendar; no timezone conversion
// happens past this point.
func asOfParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return today(), nil
	}
	return time.Parse(dateLayout, raw)
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/cancel", s.cancelLoanHandler).Methods("POST")
	return router
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, logger, cfg)

	// Daily sweep: refresh overdue status, days overdue and arrears for
	// every loan still accruing.
	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		logger.Info("running loan status sweep")
		server.ledger.ReconcileAll(today())
	}); err != nil {
		logger.Fatalf("Invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
	}
	c.Start()
	defer c.Stop()

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
