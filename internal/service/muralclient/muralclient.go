package muralclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// JSON ответы Mural API

type Account struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Balance []struct {
		Balance     string `json:"balance"`
		TokenSymbol string `json:"tokenSymbol"`
	} `json:"balance"`
}

type Transaction struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
	TokenSymbol     string `json:"tokenSymbol"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
	TransactionHash string `json:"transactionHash"`
}

type Payout struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	RecipientAmount   string `json:"recipientAmount"`
	RecipientCurrency string `json:"recipientCurrency"`
	SenderAmount      string `json:"senderAmount"`
	SenderCurrency    string `json:"senderCurrency"`
	ExchangeRate      string `json:"exchangeRate"`
	CreatedAt         string `json:"createdAt"`
}

type FxRate struct {
	Rate       float64
	ValidUntil string
}

type MuralClient interface {
	GetAccount(ctx context.Context, accountID string) (Account, error)
	ListAccountTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)
	GetFxRate(ctx context.Context, from string, to string) (FxRate, error)
	CreatePayout(ctx context.Context, amount float64, counterpartyID string, payoutMethodID string, memo string) (Payout, error)
	ExecutePayout(ctx context.Context, payoutID string) (Payout, error)
}

type muralClient struct {
	rest *resty.Client

	// Обычный ключ для чтения, transfer-ключ для выплат
	apiKey         string
	transferAPIKey string
}

func NewMuralClient(serviceAddr string, apiKey string, transferAPIKey string) MuralClient {
	rest := resty.New().SetBaseURL(serviceAddr)
	return &muralClient{
		rest:           rest,
		apiKey:         apiKey,
		transferAPIKey: transferAPIKey,
	}
}

func (client *muralClient) request(ctx context.Context, transferKey bool) (*resty.Request, error) {
	apiKey := client.apiKey
	if transferKey {
		apiKey = client.transferAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("mural api key not configured (transfer: %t)", transferKey)
	}
	return client.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json"), nil
}

func decode(resp *resty.Response, out any) error {
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return json.Unmarshal(resp.Body(), out)
	default:
		return fmt.Errorf("mural request status %d: %s", resp.StatusCode(), resp.Body())
	}
}

func (client *muralClient) GetAccount(ctx context.Context, accountID string) (Account, error) {
	req, err := client.request(ctx, false)
	if err != nil {
		return Account{}, err
	}
	resp, err := req.Get("/accounts/" + accountID)
	if err != nil {
		return Account{}, err
	}

	var account Account
	err = decode(resp, &account)
	return account, err
}

func (client *muralClient) ListAccountTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	req, err := client.request(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := req.
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get("/accounts/" + accountID + "/transactions")
	if err != nil {
		return nil, err
	}

	var answer struct {
		Results []Transaction `json:"results"`
	}
	err = decode(resp, &answer)
	return answer.Results, err
}

func (client *muralClient) GetFxRate(ctx context.Context, from string, to string) (FxRate, error) {
	req, err := client.request(ctx, false)
	if err != nil {
		return FxRate{}, err
	}
	resp, err := req.
		SetQueryParam("from", from).
		SetQueryParam("to", to).
		Get("/fx-rates")
	if err != nil {
		return FxRate{}, err
	}

	// Курс приходит строкой
	var answer struct {
		Rate       string `json:"rate"`
		ValidUntil string `json:"validUntil"`
	}
	if err := decode(resp, &answer); err != nil {
		return FxRate{}, err
	}
	rate, err := strconv.ParseFloat(answer.Rate, 64)
	if err != nil {
		return FxRate{}, fmt.Errorf("mural fx rate %q: %w", answer.Rate, err)
	}
	return FxRate{Rate: rate, ValidUntil: answer.ValidUntil}, nil
}

type payoutRequestItem struct {
	CounterpartyID string `json:"counterpartyId"`
	PayoutMethodID string `json:"payoutMethodId"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Memo           string `json:"memo,omitempty"`
}

func (client *muralClient) CreatePayout(ctx context.Context, amount float64, counterpartyID string, payoutMethodID string, memo string) (Payout, error) {
	req, err := client.request(ctx, true)
	if err != nil {
		return Payout{}, err
	}

	body := struct {
		Payouts []payoutRequestItem `json:"payouts"`
	}{
		Payouts: []payoutRequestItem{{
			CounterpartyID: counterpartyID,
			PayoutMethodID: payoutMethodID,
			Amount:         strconv.FormatFloat(amount, 'f', -1, 64),
			Currency:       "USDC",
			Memo:           memo,
		}},
	}

	resp, err := req.SetBody(body).Post("/payout-requests")
	if err != nil {
		return Payout{}, err
	}

	var payout Payout
	err = decode(resp, &payout)
	return payout, err
}

func (client *muralClient) ExecutePayout(ctx context.Context, payoutID string) (Payout, error) {
	req, err := client.request(ctx, true)
	if err != nil {
		return Payout{}, err
	}
	resp, err := req.Post("/payout-requests/" + payoutID + "/execute")
	if err != nil {
		return Payout{}, err
	}

	var payout Payout
	err = decode(resp, &payout)
	return payout, err
}
