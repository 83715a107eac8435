package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"eventhub/entity"
)

const DefaultPaystackURL = "https://api.paystack.co"

// Paystack charges cards and bank accounts through Paystack's hosted checkout.
// Amounts travel in the currency's minor unit (kobo for NGN).
type Paystack struct {
	baseURL     string
	secretKey   string
	callbackURL string
	client      *http.Client
}

func NewPaystack(baseURL, secretKey, callbackURL string) Paystack {
	return Paystack{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		secretKey:   secretKey,
		callbackURL: callbackURL,
		client:      newHTTPClient(),
	}
}

type paystackResponse[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paystackInitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransaction struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type paystackRefundRequest struct {
	Transaction string `json:"transaction"`
	Amount      int64  `json:"amount,omitempty"`
}

func (p Paystack) header() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + p.secretKey}}
}

func (p Paystack) Initiate(ctx context.Context, charge entity.Charge) (entity.PaymentSession, error) {
	callback := p.callbackURL
	if callback != "" {
		callback += "?" + url.Values{"method": {string(entity.PaymentMethodPaystack)}}.Encode()
	}

	var res paystackResponse[paystackInitializeData]
	err := doJSON(ctx, p.client, http.MethodPost, p.baseURL+"/transaction/initialize", p.header(), paystackInitializeRequest{
		Email:       charge.Email,
		Amount:      charge.Amount.MinorUnits(),
		Currency:    charge.Amount.Currency,
		Reference:   charge.Reference,
		CallbackURL: callback,
		Metadata: map[string]string{
			"purpose":     string(charge.Purpose.Kind()),
			"description": charge.Description,
		},
	}, &res)
	if err != nil {
		return entity.PaymentSession{}, fmt.Errorf("initializing paystack transaction: %w", err)
	}
	if !res.Status || res.Data.AuthorizationURL == "" {
		return entity.PaymentSession{}, fmt.Errorf("initializing paystack transaction: %s", res.Message)
	}

	return entity.PaymentSession{
		Reference:   charge.Reference,
		RedirectURL: res.Data.AuthorizationURL,
	}, nil
}

// Verify looks the transaction up by our own reference, which Paystack keeps.
func (p Paystack) Verify(ctx context.Context, providerReference string, expected entity.Money) (entity.Verification, error) {
	var raw json.RawMessage
	err := doJSON(ctx, p.client, http.MethodGet, p.baseURL+"/transaction/verify/"+url.PathEscape(providerReference), p.header(), nil, &raw)
	if err != nil {
		return entity.Verification{}, fmt.Errorf("verifying paystack transaction: %w", err)
	}

	var res paystackResponse[paystackTransaction]
	if err := json.Unmarshal(raw, &res); err != nil {
		return entity.Verification{}, fmt.Errorf("unmarshalling paystack transaction: %w", err)
	}
	details, err := json.Marshal(res.Data)
	if err != nil {
		return entity.Verification{}, fmt.Errorf("marshalling paystack transaction: %w", err)
	}

	switch res.Data.Status {
	case "success":
		paid := res.Data.Amount >= expected.MinorUnits() && strings.EqualFold(res.Data.Currency, expected.Currency)
		return entity.Verification{Succeeded: paid, RawDetails: details}, nil
	case "failed", "reversed":
		return entity.Verification{RawDetails: details}, nil
	default:
		// ongoing, pending, processing, queued and abandoned can still turn
		// into a successful charge.
		return entity.Verification{Pending: true, RawDetails: details}, nil
	}
}

func (p Paystack) Refund(ctx context.Context, providerReference string, amount entity.Money, _ string) error {
	var res paystackResponse[json.RawMessage]
	err := doJSON(ctx, p.client, http.MethodPost, p.baseURL+"/refund", p.header(), paystackRefundRequest{
		Transaction: providerReference,
		Amount:      amount.MinorUnits(),
	}, &res)
	if err != nil {
		return fmt.Errorf("creating paystack refund: %w", err)
	}
	if !res.Status {
		return fmt.Errorf("creating paystack refund: %s", res.Message)
	}

	return nil
}
