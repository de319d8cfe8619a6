package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"trendwatch/internal/trend"
)

const CoinGeckoTrendingURL = "https://api.coingecko.com/api/v3/search/trending"

type coinGeckoResponse struct {
	Coins []struct {
		Item struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
			Data   *struct {
				PriceChange map[string]float64 `json:"price_change_percentage_24h"`
			} `json:"data"`
		} `json:"item"`
	} `json:"coins"`
}

// CoinGecko reads the public /search/trending endpoint.
type CoinGecko struct {
	opt Options
}

func NewCoinGecko(opt Options) *CoinGecko {
	if strings.TrimSpace(opt.URL) == "" {
		opt.URL = CoinGeckoTrendingURL
	}
	return &CoinGecko{opt: opt}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) Fetch(ctx context.Context) (trend.RankedList, error) {
	resp, err := get(ctx, c.Name(), c.opt, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(c.Name(), fmt.Errorf("read response: %w", err))
	}

	var payload coinGeckoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Source: c.Name(), Kind: KindParse, Err: err}
	}

	out := make(trend.RankedList, 0, len(payload.Coins))
	for i, coin := range payload.Coins {
		it := coin.Item
		if it.Name == "" && it.Symbol == "" {
			return nil, &Error{Source: c.Name(), Kind: KindParse, Err: fmt.Errorf("coins[%d]: missing name and symbol", i)}
		}
		e := trend.Entry{Name: it.Name, Symbol: it.Symbol}
		if it.Data != nil {
			if v, ok := it.Data.PriceChange["usd"]; ok {
				e.ChangePct = &v
			}
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, &Error{Source: c.Name(), Kind: KindEmpty}
	}
	return out, nil
}
