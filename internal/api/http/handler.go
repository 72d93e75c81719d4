package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"aixblock-ledger/internal/domain"
	"aixblock-ledger/internal/logger"
	"aixblock-ledger/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Handler exposes the rental ledger and vesting registry over JSON.
type Handler struct {
	rentals    service.RentalService
	vesting    service.VestingService
	deployment service.DeploymentService
	health     func(ctx context.Context) error
}

// NewHandler builds the API handler. health may be nil when there is no backing store
// to check.
func NewHandler(rentals service.RentalService, vesting service.VestingService, deployment service.DeploymentService, health func(ctx context.Context) error) *Handler {
	return &Handler{
		rentals:    rentals,
		vesting:    vesting,
		deployment: deployment,
		health:     health,
	}
}

// NewRouter wires every route and wraps the result in CORS and request logging.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	router.UseEncodedPath()
	router.Use(logRequests)
	h.RegisterRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", AccountHeader},
	})
	return c.Handler(router)
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.Health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/deployment", h.GetDeployment).Methods("GET")

	api.HandleFunc("/rentals", h.RentAdd).Methods("POST")
	api.HandleFunc("/rentals/{index:[0-9]+}", h.RentModify).Methods("PATCH")
	api.HandleFunc("/rentals/{index:[0-9]+}", h.RentRemove).Methods("DELETE")
	api.HandleFunc("/rentals/{owner}", h.ListRentals).Methods("GET")
	api.HandleFunc("/rentals/{owner}/{index}", h.GetRental).Methods("GET")
	api.HandleFunc("/rentals/{owner}/{index}/start", h.StartRental).Methods("POST")
	api.HandleFunc("/rentals/{owner}/{index}/discontinue", h.DiscontinueRental).Methods("POST")
	api.HandleFunc("/rentals/{owner}/{index}/payout", h.PayoutRental).Methods("POST")

	api.HandleFunc("/vesting", h.ListAllocations).Methods("GET")
	api.HandleFunc("/vesting/{category}", h.GetAllocation).Methods("GET")
	api.HandleFunc("/vesting/{category}/balance", h.BalanceOf).Methods("GET")
	api.HandleFunc("/vesting/{category}/release", h.ReleaseVestedTokens).Methods("POST")
}

type rentalResponse struct {
	domain.Rental
	IsActive bool `json:"is_active"`
}

func newRentalResponse(r *domain.Rental) rentalResponse {
	return rentalResponse{Rental: *r, IsActive: r.IsActive()}
}

type rentAddRequest struct {
	Price        json.Number `json:"price"`
	DurationKind *int        `json:"duration_kind"`
}

type rentModifyRequest struct {
	Price json.Number `json:"price"`
}

func (h *Handler) RentAdd(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerAccount(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + AccountHeader, Code: "unauthenticated"})
		return
	}
	var req rentAddRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.DurationKind == nil || *req.DurationKind < 0 || *req.DurationKind > 255 {
		writeError(w, fmt.Errorf("%w: duration_kind must be 0 (daily), 1 (weekly) or 2 (monthly)", domain.ErrInvalidArgument))
		return
	}

	rental, err := h.rentals.RentAdd(r.Context(), owner, price, domain.DurationKind(*req.DurationKind))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRentalResponse(rental))
}

func (h *Handler) RentModify(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerAccount(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + AccountHeader, Code: "unauthenticated"})
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req rentModifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		writeError(w, err)
		return
	}

	rental, err := h.rentals.RentModify(r.Context(), owner, index, price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRentalResponse(rental))
}

func (h *Handler) RentRemove(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerAccount(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + AccountHeader, Code: "unauthenticated"})
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rental, err := h.rentals.RentRemove(r.Context(), owner, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRentalResponse(rental))
}

func (h *Handler) ListRentals(w http.ResponseWriter, r *http.Request) {
	owner, err := pathVar(r, "owner")
	if err != nil {
		writeError(w, err)
		return
	}

	rentals, err := h.rentals.ListRentals(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]rentalResponse, 0, len(rentals))
	for i := range rentals {
		resp = append(resp, newRentalResponse(&rentals[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rentals": resp})
}

func (h *Handler) GetRental(w http.ResponseWriter, r *http.Request) {
	h.withRentalPath(w, r, func(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
		return h.rentals.GetRental(ctx, owner, index)
	})
}

func (h *Handler) StartRental(w http.ResponseWriter, r *http.Request) {
	renter, ok := callerAccount(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + AccountHeader, Code: "unauthenticated"})
		return
	}
	h.withRentalPath(w, r, func(ctx context.Context, owner string, index uint64) (*domain.Rental, error) {
		return h.rentals.StartRental(ctx, renter, owner, index)
	})
}

func (h *Handler) DiscontinueRental(w http.ResponseWriter, r *http.Request) {
	h.withRentalPath(w, r, h.rentals.DiscontinueRental)
}

func (h *Handler) PayoutRental(w http.ResponseWriter, r *http.Request) {
	h.withRentalPath(w, r, h.rentals.PayoutRental)
}

func (h *Handler) withRentalPath(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, owner string, index uint64) (*domain.Rental, error)) {
	owner, err := pathVar(r, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rental, err := call(r.Context(), owner, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRentalResponse(rental))
}

func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.vesting.ListAllocations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"allocations": allocs})
}

func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	category, err := pathVar(r, "category")
	if err != nil {
		writeError(w, err)
		return
	}
	alloc, err := h.vesting.GetAllocation(r.Context(), category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (h *Handler) BalanceOf(w http.ResponseWriter, r *http.Request) {
	category, err := pathVar(r, "category")
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := h.vesting.BalanceOf(r.Context(), category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"category": category, "balance": balance})
}

func (h *Handler) ReleaseVestedTokens(w http.ResponseWriter, r *http.Request) {
	category, err := pathVar(r, "category")
	if err != nil {
		writeError(w, err)
		return
	}
	release, err := h.vesting.ReleaseVestedTokens(r.Context(), category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deployment.GetDeployment(r.Context()))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			logger.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.EscapedPath(),
			"status", rec.status,
			"account", r.Header.Get(AccountHeader),
			"duration", time.Since(start))
	})
}
