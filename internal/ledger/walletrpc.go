package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// WalletRPCClient delegates transfers to a local wallet signer service over
// HTTP. The signer owns the keys and the chain mechanics: it builds the
// transaction, asks its owner to approve it, broadcasts and waits for
// confirmation. This client only speaks the capability contract.
type WalletRPCClient struct {
	baseURL string
	client  *http.Client
}

func NewWalletRPCClient(baseURL string) *WalletRPCClient {
	return &WalletRPCClient{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

type transferRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

type transferResponse struct {
	TxRef string `json:"tx_ref"`
	Error string `json:"error,omitempty"`
}

func (that *WalletRPCClient) Transfer(ctx context.Context, fromIdentity, toIdentity string, amount float64) (TxRef, error) {
	body, err := json.Marshal(transferRequest{From: fromIdentity, To: toIdentity, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, that.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := that.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrConfirmationTimeout, err)
		}
		return "", fmt.Errorf("%w: %s", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	var payload transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: undecodable signer response: %s", ErrNetworkFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", transferError(resp.StatusCode, payload.Error)
	}

	return TxRef(payload.TxRef), nil
}

// transferError maps the signer's refusal to the capability taxonomy. The
// signer reports a declined approval as 403 and an empty wallet as 402.
func transferError(status int, detail string) error {
	var base error
	switch status {
	case http.StatusForbidden:
		base = ErrAuthorizationDeclined
	case http.StatusPaymentRequired:
		base = ErrInsufficientFunds
	case http.StatusGatewayTimeout:
		base = ErrConfirmationTimeout
	default:
		base = ErrNetworkFailure
	}

	if detail == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, detail)
}
