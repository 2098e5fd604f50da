package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/merchantpay/ledger-service/internal/config"
	"github.com/merchantpay/ledger-service/internal/domain"
	"github.com/merchantpay/ledger-service/internal/logging"
	"github.com/merchantpay/ledger-service/internal/repository"
	"github.com/merchantpay/ledger-service/internal/service"
	"github.com/merchantpay/ledger-service/internal/service/posting"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	accounts := repository.NewAccountRepository(db)
	ledger := repository.NewLedgerRepository(db)

	chart := service.NewChartOfAccountsService(accounts)
	if err := chart.Seed(context.Background()); err != nil {
		slog.Error("failed to seed chart of accounts", "error", err)
		os.Exit(1)
	}

	engine := posting.NewService(chart, ledger, db, cfg.DefaultCurrency)
	projector := service.NewBalanceProjector(accounts, ledger)
	queries := service.NewQueryService(ledger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	registerRoutes(mux, engine, projector, queries)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// registerRoutes wires the thin JSON surface collaborating services call.
// Callers resolve identity themselves and pass the actor explicitly.
func registerRoutes(mux *http.ServeMux, engine *posting.Service, projector *service.BalanceProjector, queries *service.QueryService) {
	type postingBody struct {
		OrderID              string          `json:"order_id"`
		ReferenceID          string          `json:"reference_id"`
		PaymentTransactionID string          `json:"payment_transaction_id"`
		TransactionID        string          `json:"transaction_id"`
		CustomerID           string          `json:"customer_id"`
		Amount               decimal.Decimal `json:"amount"`
		ActorID              string          `json:"actor_id"`
		Destination          string          `json:"destination"`
	}

	decode := func(w http.ResponseWriter, r *http.Request) (*postingBody, bool) {
		var b postingBody
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
			return nil, false
		}
		return &b, true
	}

	mux.HandleFunc("POST /v1/postings/wallet-deduction", func(w http.ResponseWriter, r *http.Request) {
		b, ok := decode(w, r)
		if !ok {
			return
		}
		entries, err := engine.PostWalletDeduction(r.Context(), posting.WalletDeductionRequest{
			OrderID:       b.OrderID,
			TransactionID: b.TransactionID,
			CustomerID:    b.CustomerID,
			Amount:        b.Amount,
			ActorID:       b.ActorID,
		})
		respondPosting(w, entries, err)
	})

	mux.HandleFunc("POST /v1/postings/wallet-payout", func(w http.ResponseWriter, r *http.Request) {
		b, ok := decode(w, r)
		if !ok {
			return
		}
		entries, err := engine.PostWalletPayout(r.Context(), posting.WalletPayoutRequest{
			ReferenceID:   b.ReferenceID,
			TransactionID: b.TransactionID,
			CustomerID:    b.CustomerID,
			Amount:        b.Amount,
			ActorID:       b.ActorID,
		})
		respondPosting(w, entries, err)
	})

	mux.HandleFunc("POST /v1/postings/withdrawal-approved", func(w http.ResponseWriter, r *http.Request) {
		b, ok := decode(w, r)
		if !ok {
			return
		}
		entries, err := engine.PostWithdrawalApproved(r.Context(), posting.WithdrawalApprovedRequest{
			ReferenceID:   b.ReferenceID,
			TransactionID: b.TransactionID,
			CustomerID:    b.CustomerID,
			Amount:        b.Amount,
			ActorID:       b.ActorID,
		})
		respondPosting(w, entries, err)
	})

	mux.HandleFunc("POST /v1/postings/refund-approved", func(w http.ResponseWriter, r *http.Request) {
		b, ok := decode(w, r)
		if !ok {
			return
		}
		entries, err := engine.PostRefundApproved(r.Context(), posting.RefundApprovedRequest{
			PaymentTransactionID: b.PaymentTransactionID,
			TransactionID:        b.TransactionID,
			CustomerID:           b.CustomerID,
			OrderID:              b.OrderID,
			Amount:               b.Amount,
			ActorID:              b.ActorID,
			Destination:          domain.RefundDestination(b.Destination),
		})
		respondPosting(w, entries, err)
	})

	mux.HandleFunc("GET /v1/wallets/{customerID}/balance", func(w http.ResponseWriter, r *http.Request) {
		balance, err := projector.CustomerWalletBalance(r.Context(), r.PathValue("customerID"))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
	})

	mux.HandleFunc("GET /v1/ledger/entries", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter repository.EntryFilter
		if v := q.Get("account_id"); v != "" {
			filter.AccountID = &v
		}
		if v := q.Get("customer_id"); v != "" {
			filter.CustomerID = &v
		}
		if v := q.Get("transaction_id"); v != "" {
			filter.TransactionID = &v
		}
		if v := domain.EntryType(q.Get("entry_type")); v.IsValid() {
			filter.EntryType = &v
		}
		if d, err := time.Parse("2006-01-02", q.Get("date_from")); err == nil {
			filter.DateFrom = &d
		}
		if d, err := time.Parse("2006-01-02", q.Get("date_to")); err == nil {
			filter.DateTo = &d
		}

		page, err := queries.ListEntries(r.Context(), service.ListEntriesRequest{
			Filter:   filter,
			Page:     atoiDefault(q.Get("page"), 1),
			PageSize: atoiDefault(q.Get("page_size"), 0),
			SortBy:   service.SortField(q.Get("sort_by")),
			SortDir:  service.SortDirection(q.Get("sort_dir")),
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	})
}

func respondPosting(w http.ResponseWriter, entries []domain.LedgerEntry, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAccountInactive):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func connectDB(dsn string, pool repository.PoolConfig) (*sql.DB, error) {
	var lastErr error
	for i := range 30 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := repository.NewPostgresDB(ctx, dsn, pool)
		cancel()
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}
