package handlers

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/neonchat/neonchat/internal/api/middleware"
	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/models"
)

const productInfo = "NeonChat Pro"

var amountRegex = regexp.MustCompile(`^[0-9]{1,7}(\.[0-9]{1,2})?$`)

// PaymentSessionRequest represents the checkout request body.
type PaymentSessionRequest struct {
	Alias  string `json:"alias"`
	Amount string `json:"amount"`
	Email  string `json:"email"`
}

// PaymentSessionResponse carries the form the browser posts to the gateway.
type PaymentSessionResponse struct {
	Success bool              `json:"success"`
	PayUURL string            `json:"payuURL,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// CreatePaymentSession builds a signed PayU checkout for the authenticated alias.
func (h *Handler) CreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.PaymentsEnabled() {
		h.Error(w, http.StatusServiceUnavailable, "payments not configured")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req PaymentSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Alias != "" && req.Alias != user.Alias {
		h.Error(w, http.StatusForbidden, "alias does not match credentials")
		return
	}
	if !amountRegex.MatchString(req.Amount) || strings.Trim(req.Amount, "0.") == "" {
		h.Error(w, http.StatusBadRequest, "invalid amount")
		return
	}

	session := &models.PaymentSession{
		TxnID:     ulid.Make().String(),
		Alias:     user.Alias,
		Amount:    req.Amount,
		Plan:      models.PlanPro,
		CreatedAt: time.Now().UTC(),
	}

	if h.redis != nil {
		if err := h.redis.SavePaymentSession(r.Context(), session); err != nil {
			h.logger.Error().Err(err).Str("alias", user.Alias).Msg("save payment session failed")
			h.Error(w, http.StatusInternalServerError, "could not create payment session")
			return
		}
	}

	callback := strings.TrimRight(h.cfg.PublicURL, "/") + "/api/payments/callback"
	params := map[string]string{
		"key":         h.cfg.PayUKey,
		"txnid":       session.TxnID,
		"amount":      session.Amount,
		"productinfo": productInfo,
		"firstname":   session.Alias,
		"email":       req.Email,
		"surl":        callback,
		"furl":        callback,
	}
	params["hash"] = payuRequestHash(h.cfg.PayUKey, h.cfg.PayUSalt, params)

	metrics.PaymentSessions.Inc()
	h.logger.Info().Str("alias", session.Alias).Str("txnid", session.TxnID).Msg("payment session created")

	h.JSON(w, http.StatusOK, PaymentSessionResponse{
		Success: true,
		PayUURL: h.cfg.PayUURL,
		Params:  params,
	})
}

// PaymentCallback receives the gateway's form post, verifies its reverse hash
// and upgrades the alias on success. The browser is redirected back to the app.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.PaymentsEnabled() || h.accounts == nil {
		h.Error(w, http.StatusServiceUnavailable, "payments not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid form body")
		return
	}

	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	expected := payuResponseHash(h.cfg.PayUKey, h.cfg.PayUSalt, form)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(form["hash"]))) != 1 {
		metrics.BlockedRequests.WithLabelValues("payment_hash_mismatch").Inc()
		h.logger.Warn().Str("txnid", form["txnid"]).Msg("payment callback hash mismatch")
		h.Error(w, http.StatusBadRequest, "invalid hash")
		return
	}

	alias := form["firstname"]
	if h.redis != nil {
		session, err := h.redis.GetPaymentSession(r.Context(), form["txnid"])
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "could not load payment session")
			return
		}
		if session == nil {
			h.Error(w, http.StatusNotFound, "unknown payment session")
			return
		}
		alias = session.Alias
	}

	outcome := "failure"
	if form["status"] == "success" {
		if err := h.accounts.SetPlan(r.Context(), alias, models.PlanPro); err != nil {
			h.logger.Error().Err(err).Str("alias", alias).Msg("plan upgrade failed")
			h.Error(w, http.StatusInternalServerError, "could not upgrade plan")
			return
		}
		outcome = "success"
		h.logger.Info().Str("alias", alias).Str("txnid", form["txnid"]).Msg("plan upgraded")
	}

	http.Redirect(w, r, strings.TrimRight(h.cfg.PublicURL, "/")+"/?payment="+outcome, http.StatusSeeOther)
}

// payuRequestHash signs key|txnid|amount|productinfo|firstname|email|udf1..udf5|||||salt.
func payuRequestHash(key, salt string, p map[string]string) string {
	fields := []string{
		key, p["txnid"], p["amount"], p["productinfo"], p["firstname"], p["email"],
		p["udf1"], p["udf2"], p["udf3"], p["udf4"], p["udf5"],
		"", "", "", "", "",
		salt,
	}
	return sha512Hex(strings.Join(fields, "|"))
}

// payuResponseHash is the gateway's reverse hash over the callback fields.
func payuResponseHash(key, salt string, p map[string]string) string {
	fields := []string{
		salt, p["status"],
		"", "", "", "", "",
		p["udf5"], p["udf4"], p["udf3"], p["udf2"], p["udf1"],
		p["email"], p["firstname"], p["productinfo"], p["amount"], p["txnid"],
		key,
	}
	return sha512Hex(strings.Join(fields, "|"))
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
