package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// winningPayout is the payout numerator of a fully winning outcome.
const winningPayout = 1000

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type marketResponse struct {
	Closed        bool            `json:"closed"`
	Archived      bool            `json:"archived"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
}

type payoutOutcome struct {
	Name            string  `json:"name"`
	PayoutNumerator float64 `json:"payoutNumerator"`
}

// Resolve fetches the market and reports its winning outcome, lowercased.
// Open markets, and closed markets without a clear winner, are unresolved.
func (c *Client) Resolve(ctx context.Context, marketID string) (types.Resolution, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/markets/%s", c.baseURL, marketID),
		nil,
	)
	if err != nil {
		return types.Resolution{}, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Resolution{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Resolution{}, fmt.Errorf("market lookup failed (status %d)", resp.StatusCode)
	}

	var market marketResponse
	if err := json.NewDecoder(resp.Body).Decode(&market); err != nil {
		return types.Resolution{}, fmt.Errorf("failed to decode market: %w", err)
	}

	if !market.Closed && !market.Archived {
		return types.Resolution{}, nil
	}

	winner := winningOutcome(market)
	if winner == "" {
		log.Debug().Str("market", marketID).Msg("Closed market has no winning outcome yet")
		return types.Resolution{}, nil
	}

	return types.Resolution{Resolved: true, WinningOutcome: winner}, nil
}

// winningOutcome understands both the payout-numerator outcome objects and the
// parallel outcomes/outcomePrices string arrays.
func winningOutcome(m marketResponse) string {
	var payouts []payoutOutcome
	if err := json.Unmarshal(m.Outcomes, &payouts); err == nil {
		for _, o := range payouts {
			if o.PayoutNumerator == winningPayout {
				return strings.ToLower(o.Name)
			}
		}
		return ""
	}

	names := decodeStringList(m.Outcomes)
	prices := decodeStringList(m.OutcomePrices)
	if len(names) == 0 || len(names) != len(prices) {
		return ""
	}

	for i, p := range prices {
		price, err := strconv.ParseFloat(p, 64)
		if err == nil && price >= 1 {
			return strings.ToLower(names[i])
		}
	}
	return ""
}

// decodeStringList accepts a JSON array of strings or a JSON string holding one.
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		return nil
	}
	return list
}
