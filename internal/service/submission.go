package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"polytrade/internal/clob"
	"polytrade/internal/metrics"
	"polytrade/internal/models"
	"polytrade/internal/orders"
	"polytrade/internal/repository"
	"polytrade/internal/session"
)

// minGTDLead is how far in the future a Good-Til-Date expiration must sit.
const minGTDLead = 60 * time.Second

// SubmitParams is the parsed order envelope as the handler received it.
type SubmitParams struct {
	Order         json.RawMessage
	OrderType     string
	RootSide      string
	FunderAddress string
	ClientID      string
	ClientMeta    map[string]any
}

// SubmitResult carries the exchange's acceptance payload.
type SubmitResult struct {
	RequestID string          `json:"requestId"`
	OrderID   string          `json:"orderId,omitempty"`
	Response  json.RawMessage `json:"response"`
}

// Submission revalidates signed orders against policy, attaches the session's
// exchange credentials, and forwards to the exchange with bounded retries.
// Each request walks one way through validation, sanitization, and submission;
// the first failure is terminal.
type Submission struct {
	Exchange *clob.Client
	Repo     repository.Repository
	Logger   *zap.Logger
	Builder  clob.BuilderSigner
	Policy   clob.RetryPolicy
}

// Submit runs the full pipeline for one order request.
func (s *Submission) Submit(ctx context.Context, sess *session.Session, params SubmitParams) (*SubmitResult, *Failure) {
	if sess == nil || sess.Expired(time.Now().UTC()) {
		return nil, failf(http.StatusUnauthorized, CodeSessionRequired, "no active session")
	}

	order, fail := s.validate(params)
	if fail != nil {
		outcome := metrics.OutcomeInvalid
		if fail.Code == CodeSellDisabled || fail.Code == CodeExpirationPolicy {
			outcome = metrics.OutcomePolicyBlocked
		}
		metrics.OrderSubmissions.WithLabelValues(outcome).Inc()
		return nil, fail
	}

	requestID := uuid.NewString()
	rec := s.journalStart(ctx, requestID, order, params)

	start := time.Now()
	result, fail := s.forward(ctx, sess, order, params)
	metrics.SubmitDuration.Observe(time.Since(start).Seconds())

	if fail != nil {
		outcome := metrics.OutcomeUpstreamError
		status := "upstream_error"
		if fail.Code == CodeUpstreamRejected {
			outcome = metrics.OutcomeRejected
			status = "rejected"
		}
		metrics.OrderSubmissions.WithLabelValues(outcome).Inc()
		s.journalFinish(ctx, rec, status, fail.Code, fail.Message, nil, "")
		return nil, fail
	}

	metrics.OrderSubmissions.WithLabelValues(metrics.OutcomeAccepted).Inc()
	s.journalFinish(ctx, rec, "accepted", "", "", result.Response, result.OrderID)
	result.RequestID = requestID
	return result, nil
}

// validate covers structure and policy: normalization, the sell block, the
// expiration rule, and the funder binding. Nothing here touches the network.
func (s *Submission) validate(params SubmitParams) (*orders.SignedOrder, *Failure) {
	if len(params.Order) == 0 {
		return nil, failf(http.StatusBadRequest, CodeInvalidOrder, "missing order")
	}

	// The sell block runs on the raw payload first: a payload too malformed
	// to normalize must still be refused as a sell when it says it is one.
	if fail := checkSellIndicators(params.RootSide, params.Order); fail != nil {
		return nil, fail
	}

	order, err := orders.Normalize(params.Order)
	if err != nil {
		return nil, failf(http.StatusBadRequest, CodeInvalidOrder, "%v", err)
	}

	if order.Side != orders.SideBuy {
		return nil, failf(http.StatusBadRequest, CodeSellDisabled, "sell orders are not accepted")
	}
	if !saltSafe(order.Salt) {
		return nil, failf(http.StatusBadRequest, CodeInvalidOrder, "salt out of safe integer range")
	}
	if order.TokenID == "" || order.TokenID == "0" {
		return nil, failf(http.StatusBadRequest, CodeInvalidOrder, "missing tokenId")
	}

	orderType := strings.ToUpper(strings.TrimSpace(params.OrderType))
	if orderType == "" {
		orderType = orders.OrderTypeFOK
	}
	switch orderType {
	case orders.OrderTypeFOK, orders.OrderTypeGTC, orders.OrderTypeGTD:
	default:
		return nil, failf(http.StatusBadRequest, CodeInvalidOrder, "unknown order type %q", orderType)
	}
	if fail := checkExpiration(orderType, order.Expiration); fail != nil {
		return nil, fail
	}

	if params.FunderAddress != "" && !strings.EqualFold(params.FunderAddress, order.Maker) {
		return nil, failf(http.StatusBadRequest, CodeFunderMismatch,
			"funder %s does not match order maker %s", params.FunderAddress, order.Maker)
	}

	return order, nil
}

func (s *Submission) forward(ctx context.Context, sess *session.Session, order *orders.SignedOrder, params SubmitParams) (*SubmitResult, *Failure) {
	orderType := strings.ToUpper(strings.TrimSpace(params.OrderType))
	if orderType == "" {
		orderType = orders.OrderTypeFOK
	}
	req := clob.SubmitRequest{
		Order:     order,
		Owner:     sess.APIKey,
		OrderType: orderType,
	}
	auth := clob.SubmitAuth{
		Creds: clob.APICreds{
			APIKey:     sess.APIKey,
			Secret:     sess.Secret,
			Passphrase: sess.Passphrase,
		},
		Address: sess.WalletAddress,
	}

	raw, err := s.Exchange.SubmitOrder(ctx, req, auth, s.Builder, s.Policy)
	if err != nil {
		var rej *clob.RejectionError
		if errors.As(err, &rej) {
			return nil, &Failure{
				Code:    CodeUpstreamRejected,
				Status:  http.StatusBadRequest,
				Message: rej.Message,
				Details: rej.Raw,
			}
		}
		var unavail *clob.UnavailableError
		if errors.As(err, &unavail) {
			if s.Logger != nil {
				s.Logger.Error("exchange unavailable",
					zap.Int("status", unavail.Status),
					zap.String("content_type", unavail.ContentType),
					zap.Error(err))
			}
			if unavail.Status > 0 {
				metrics.UpstreamStatus.WithLabelValues(strconv.Itoa(unavail.Status)).Inc()
			}
			return nil, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "exchange unavailable")
		}
		return nil, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "%v", err)
	}

	result := &SubmitResult{Response: raw}
	var parsed struct {
		OrderID string `json:"orderID"`
		ID      string `json:"orderId"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		result.OrderID = parsed.OrderID
		if result.OrderID == "" {
			result.OrderID = parsed.ID
		}
	}
	return result, nil
}

func (s *Submission) journalStart(ctx context.Context, requestID string, order *orders.SignedOrder, params SubmitParams) *models.OrderRecord {
	if s.Repo == nil {
		return nil
	}
	price, size := derivePriceSize(order)
	now := time.Now().UTC()
	rec := &models.OrderRecord{
		RequestID:   requestID,
		ClientID:    params.ClientID,
		TokenID:     order.TokenID,
		Maker:       strings.ToLower(order.Maker),
		Funder:      strings.ToLower(params.FunderAddress),
		OrderType:   strings.ToUpper(params.OrderType),
		Price:       price,
		Size:        size,
		Status:      "pending",
		SubmittedAt: &now,
	}
	if rec.OrderType == "" {
		rec.OrderType = orders.OrderTypeFOK
	}
	if err := s.Repo.InsertOrderRecord(ctx, rec); err != nil && s.Logger != nil {
		s.Logger.Warn("order journal insert failed", zap.Error(err))
	}
	return rec
}

func (s *Submission) journalFinish(ctx context.Context, rec *models.OrderRecord, status, code, detail string, response json.RawMessage, clobOrderID string) {
	if s.Repo == nil || rec == nil || rec.ID == 0 {
		return
	}
	fields := map[string]any{}
	if code != "" {
		fields["failure_code"] = code
		fields["failure_detail"] = detail
	}
	if len(response) > 0 {
		fields["upstream_response"] = datatypes.JSON(response)
	}
	if clobOrderID != "" {
		fields["clob_order_id"] = clobOrderID
	}
	if err := s.Repo.UpdateOrderRecordStatus(ctx, rec.ID, status, fields); err != nil && s.Logger != nil {
		s.Logger.Warn("order journal update failed", zap.Error(err))
	}
}

// SweepStaleJournal abandons pending journal rows older than maxAge. Rows only
// stay pending that long when the process died between insert and finish.
func (s *Submission) SweepStaleJournal(ctx context.Context, maxAge time.Duration) {
	if s.Repo == nil {
		return
	}
	n, err := s.Repo.MarkStaleOrderRecords(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("order journal sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 && s.Logger != nil {
		s.Logger.Info("abandoned stale order journal rows", zap.Int64("count", n))
	}
}

// derivePriceSize backs price and size out of the wire amounts for the
// journal. Best effort only; the journal is observability, not accounting.
func derivePriceSize(order *orders.SignedOrder) (decimal.Decimal, decimal.Decimal) {
	maker, err1 := decimal.NewFromString(order.MakerAmount)
	taker, err2 := decimal.NewFromString(order.TakerAmount)
	if err1 != nil || err2 != nil || taker.Sign() == 0 {
		return decimal.Zero, decimal.Zero
	}
	size := taker.Shift(-6)
	price := maker.Div(taker).Round(6)
	return price, size
}

// checkSellIndicators refuses anything that looks like a sell: an explicit
// sell side at the root or inside the order, or a negative amount field.
// Checked redundantly so no single parsing path can let one through.
func checkSellIndicators(rootSide string, raw json.RawMessage) *Failure {
	if isSellWord(rootSide) {
		return failf(http.StatusBadRequest, CodeSellDisabled, "sell orders are not accepted")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	if sideRaw, ok := fields["side"]; ok {
		var s string
		if json.Unmarshal(sideRaw, &s) == nil && isSellWord(s) {
			return failf(http.StatusBadRequest, CodeSellDisabled, "sell orders are not accepted")
		}
		var n int
		if json.Unmarshal(sideRaw, &n) == nil && n == orders.SideSell {
			return failf(http.StatusBadRequest, CodeSellDisabled, "sell orders are not accepted")
		}
	}
	for _, key := range []string{"makerAmount", "maker_amount", "takerAmount", "taker_amount", "size", "amount"} {
		if amtRaw, ok := fields[key]; ok && isNegative(amtRaw) {
			return failf(http.StatusBadRequest, CodeSellDisabled, "negative %s indicates a sell", key)
		}
	}
	return nil
}

func isSellWord(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SELL", "1":
		return true
	}
	return false
}

func isNegative(raw json.RawMessage) bool {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.HasPrefix(strings.TrimSpace(s), "-")
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f < 0
	}
	return false
}

func checkExpiration(orderType, expiration string) *Failure {
	if orderType != orders.OrderTypeGTD {
		if expiration != "0" {
			return failf(http.StatusBadRequest, CodeExpirationPolicy,
				"non-GTD orders must carry expiration \"0\"")
		}
		return nil
	}
	exp, err := strconv.ParseInt(expiration, 10, 64)
	if err != nil {
		return failf(http.StatusBadRequest, CodeExpirationPolicy, "unparseable expiration")
	}
	if time.Unix(exp, 0).Before(time.Now().Add(minGTDLead)) {
		return failf(http.StatusBadRequest, CodeExpirationPolicy,
			"GTD expiration must be at least 60s in the future")
	}
	return nil
}

// saltSafe bounds the salt to IEEE-754 safe integers so number-typed JSON
// consumers round-trip it intact.
func saltSafe(salt string) bool {
	v, ok := new(big.Int).SetString(salt, 10)
	if !ok || v.Sign() < 0 {
		return false
	}
	max := new(big.Int).Lsh(big.NewInt(1), 53)
	return v.Cmp(max) < 0
}
