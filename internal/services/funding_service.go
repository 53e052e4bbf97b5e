package services

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/vikray/backend/internal/middleware"
	"github.com/vikray/backend/internal/models"
)

// Funding decision outcomes
const (
	OutcomeApprove = "APPROVE"
	OutcomeReject  = "REJECT"
)

// FundingService owns the admin-mediated deposit/withdrawal queue. Submitting
// a request never touches the ledger; only an approval writes the single
// credit or debit entry.
type FundingService struct {
	db        *sql.DB
	ledger    *LedgerService
	settings  *SettingsService
	validator *ValidationHelper
}

func NewFundingService(db *sql.DB, ledger *LedgerService, settings *SettingsService) *FundingService {
	return &FundingService{
		db:        db,
		ledger:    ledger,
		settings:  settings,
		validator: NewValidationHelper(),
	}
}

// SubmitFunding files a pending request. Withdrawals are pre-checked against
// the recomputed balance and limited to one outstanding request per account.
func (fs *FundingService) SubmitFunding(accountID, kind string, amount int64, method string,
	proof models.FundingProof) (*models.FundingRequest, error) {

	if amount <= 0 {
		return nil, newDomainError(CodeInvalidState, "Amount must be positive")
	}
	if method != models.FundingMethodCrypto && method != models.FundingMethodBank {
		return nil, newDomainError(CodeInvalidState, "Unknown funding method")
	}

	if kind == models.FundingDeposit && method == models.FundingMethodCrypto {
		settings, err := fs.settings.Get()
		if err != nil {
			return nil, err
		}
		if accepted := settings.AcceptedAddresses[method]; accepted == "" || proof.ToAddress != accepted {
			return nil, newDomainError(CodeInvalidState, "Deposit was not sent to an accepted address")
		}
	}

	proofJSON, err := json.Marshal(proof)
	if err != nil {
		return nil, err
	}

	tx, err := fs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if kind == models.FundingWithdrawal {
		if _, err := fs.ledger.LockAccountTx(tx, accountID); err != nil {
			return nil, err
		}
		balance, err := fs.ledger.BalanceTx(tx, accountID)
		if err != nil {
			return nil, err
		}
		if balance < amount {
			return nil, ErrInsufficientFunds(amount, balance)
		}
	}

	request := &models.FundingRequest{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		Method:    method,
		Proof:     proof,
		Status:    models.FundingPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(`
		INSERT INTO funding_requests
		(id, account_id, kind, amount, method, proof, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		request.ID, request.AccountID, request.Kind, request.Amount,
		request.Method, proofJSON, request.Status, request.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Partial unique index: one pending withdrawal per account.
			return nil, ErrDuplicatePendingWithdrawal()
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[FUNDING] %s request %s submitted by %s for %s",
		request.Kind, request.ID, accountID, FormatINR(amount))
	return request, nil
}

// Decide applies an approver's one-way verdict. Approving a withdrawal
// re-checks the balance under the account lock at decision time; the balance
// may have dropped since submission.
func (fs *FundingService) Decide(requestID, approverID, outcome, note string) (*models.FundingRequest, error) {
	if outcome != OutcomeApprove && outcome != OutcomeReject {
		return nil, newDomainError(CodeInvalidState, "Outcome must be APPROVE or REJECT")
	}

	tx, err := fs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	request, err := fs.lockRequestTx(tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.FundingPending {
		return nil, ErrAlreadyDecided()
	}

	newStatus := models.FundingRejected
	if outcome == OutcomeApprove {
		newStatus = models.FundingApproved

		if _, err := fs.ledger.LockAccountTx(tx, request.AccountID); err != nil {
			return nil, err
		}

		switch request.Kind {
		case models.FundingDeposit:
			err = fs.ledger.AppendEntryTx(tx, &models.LedgerEntry{
				AccountID:   request.AccountID,
				Direction:   models.DirectionCredit,
				Amount:      request.Amount,
				Category:    models.CategoryDeposit,
				Description: "Deposit approved",
				RelatedType: "funding_request",
				RelatedID:   request.ID,
			})
		case models.FundingWithdrawal:
			var balance int64
			balance, err = fs.ledger.BalanceTx(tx, request.AccountID)
			if err == nil && balance < request.Amount {
				return nil, ErrInsufficientFunds(request.Amount, balance)
			}
			if err == nil {
				err = fs.ledger.AppendEntryTx(tx, &models.LedgerEntry{
					AccountID:   request.AccountID,
					Direction:   models.DirectionDebit,
					Amount:      request.Amount,
					Category:    models.CategoryWithdrawal,
					Description: "Withdrawal approved",
					RelatedType: "funding_request",
					RelatedID:   request.ID,
				})
			}
		}
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	_, err = tx.Exec(`
		UPDATE funding_requests
		SET status = $1, approver_id = $2, note = $3, decided_at = $4
		WHERE id = $5`,
		newStatus, approverID, note, now, request.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	request.Status = newStatus
	request.ApproverID = approverID
	request.Note = note
	request.DecidedAt = &now
	log.Printf("[FUNDING] Request %s %s by %s", request.ID, newStatus, approverID)
	return request, nil
}

// ListRequests returns funding requests filtered by status, oldest pending
// first so the approval queue drains in order.
func (fs *FundingService) ListRequests(status string) ([]models.FundingRequest, error) {
	rows, err := fs.db.Query(`
		SELECT id, account_id, kind, amount, method, proof, status,
		       COALESCE(approver_id, ''), COALESCE(note, ''), decided_at, created_at
		FROM funding_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
		LIMIT 100`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.FundingRequest{}
	for rows.Next() {
		var req models.FundingRequest
		var proofJSON []byte
		if err := rows.Scan(&req.ID, &req.AccountID, &req.Kind, &req.Amount, &req.Method,
			&proofJSON, &req.Status, &req.ApproverID, &req.Note, &req.DecidedAt, &req.CreatedAt); err != nil {
			return nil, err
		}
		if len(proofJSON) > 0 {
			json.Unmarshal(proofJSON, &req.Proof)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

func (fs *FundingService) lockRequestTx(tx *sql.Tx, requestID string) (*models.FundingRequest, error) {
	var req models.FundingRequest
	var proofJSON []byte
	err := tx.QueryRow(`
		SELECT id, account_id, kind, amount, method, proof, status,
		       COALESCE(approver_id, ''), COALESCE(note, ''), decided_at, created_at
		FROM funding_requests
		WHERE id = $1
		FOR UPDATE`, requestID).Scan(
		&req.ID, &req.AccountID, &req.Kind, &req.Amount, &req.Method,
		&proofJSON, &req.Status, &req.ApproverID, &req.Note, &req.DecidedAt, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("Funding request")
	}
	if err != nil {
		return nil, err
	}
	if len(proofJSON) > 0 {
		json.Unmarshal(proofJSON, &req.Proof)
	}
	return &req, nil
}

// SubmitDeposit files a deposit proof
// @Summary Submit a deposit proof
// @Tags funding
// @Accept json
// @Produce json
// @Param deposit body object{amount=int64,method=string,proof=models.FundingProof} true "Deposit details"
// @Success 201 {object} models.FundingRequest
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /funding/deposits [post]
func (fs *FundingService) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	fs.submit(w, r, models.FundingDeposit)
}

// SubmitWithdrawal files a withdrawal request
// @Summary Submit a withdrawal request
// @Tags funding
// @Accept json
// @Produce json
// @Param withdrawal body object{amount=int64,method=string,proof=models.FundingProof} true "Withdrawal details"
// @Success 201 {object} models.FundingRequest
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /funding/withdrawals [post]
func (fs *FundingService) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	fs.submit(w, r, models.FundingWithdrawal)
}

func (fs *FundingService) submit(w http.ResponseWriter, r *http.Request, kind string) {
	var req struct {
		Amount int64               `json:"amount" validate:"required,gt=0"`
		Method string              `json:"method" validate:"required,oneof=CRYPTO BANK_TRANSFER"`
		Proof  models.FundingProof `json:"proof"`
	}
	if !decodeAndValidate(fs.validator, w, r, &req) {
		return
	}

	request, err := fs.SubmitFunding(middleware.UserID(r.Context()), kind, req.Amount, req.Method, req.Proof)
	if err != nil {
		SendDomainError(w, err, "Failed to submit funding request")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// DecideRequest applies an admin verdict to a pending request
// @Summary Decide a funding request
// @Tags funding
// @Accept json
// @Produce json
// @Param requestId path string true "Request ID"
// @Param decision body object{outcome=string,note=string} true "APPROVE or REJECT with note"
// @Success 200 {object} models.FundingRequest
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /funding/{requestId}/decide [post]
func (fs *FundingService) DecideRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome" validate:"required,oneof=APPROVE REJECT"`
		Note    string `json:"note" validate:"max=500"`
	}
	if !decodeAndValidate(fs.validator, w, r, &req) {
		return
	}

	request, err := fs.Decide(chi.URLParam(r, "requestId"), middleware.UserID(r.Context()), req.Outcome, req.Note)
	if err != nil {
		SendDomainError(w, err, "Failed to decide funding request")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// ListFunding lists funding requests for the approval queue
// @Summary List funding requests (admin)
// @Tags funding
// @Produce json
// @Param status query string false "Filter by status (PENDING, APPROVED, REJECTED)"
// @Success 200 {object} object{requests=[]models.FundingRequest,count=int}
// @Router /admin/funding [get]
func (fs *FundingService) ListFunding(w http.ResponseWriter, r *http.Request) {
	requests, err := fs.ListRequests(r.URL.Query().Get("status"))
	if err != nil {
		log.Printf("[FUNDING] Failed to list requests: %v", err)
		SendErrorResponse(w, "Failed to fetch funding requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetDepositAddress returns the configured address and a QR code for it
// @Summary Get deposit address
// @Description Accepted payment address for the chosen method, with a QR code PNG (base64)
// @Tags funding
// @Produce json
// @Param method query string true "Funding method (CRYPTO or BANK_TRANSFER)"
// @Success 200 {object} object{method=string,address=string,qr_png_base64=string}
// @Failure 404 {object} ErrorResponse
// @Router /funding/deposit-address [get]
func (fs *FundingService) GetDepositAddress(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("method")

	settings, err := fs.settings.Get()
	if err != nil {
		log.Printf("[FUNDING] Failed to load settings: %v", err)
		SendErrorResponse(w, "Failed to load deposit address", http.StatusInternalServerError, nil)
		return
	}

	address := settings.AcceptedAddresses[method]
	if address == "" {
		SendDomainError(w, ErrNotFound("Deposit address"), "")
		return
	}

	png, err := qrcode.Encode(address, qrcode.Medium, 256)
	if err != nil {
		log.Printf("[FUNDING] Failed to render QR for %s: %v", method, err)
		SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"method":        method,
		"address":       address,
		"qr_png_base64": base64.StdEncoding.EncodeToString(png),
	})
}
