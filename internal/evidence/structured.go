package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"poolwarden/internal/model"
)

// GasPricer is the raw-RPC fallback when the explorer oracle is unavailable.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// StructuredClient fetches machine-readable evidence: gas, coin price
// movement, weather. Each resolution pipeline consumes each source once.
type StructuredClient struct {
	Client          *http.Client
	GasOracleURL    string
	EtherscanAPIKey string
	PriceAPIURL     string
	WeatherAPIURL   string
	WeatherAPIKey   string
	Fallback        GasPricer
}

// NewStructuredClient wires the structured evidence sources.
func NewStructuredClient(gasURL, etherscanKey, priceURL, weatherURL, weatherKey string, fallback GasPricer) *StructuredClient {
	return &StructuredClient{
		Client:          &http.Client{Timeout: 15 * time.Second},
		GasOracleURL:    gasURL,
		EtherscanAPIKey: etherscanKey,
		PriceAPIURL:     priceURL,
		WeatherAPIURL:   weatherURL,
		WeatherAPIKey:   weatherKey,
		Fallback:        fallback,
	}
}

func (c *StructuredClient) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxEvidenceBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// FetchGas returns the current fast gas price in Gwei. Primary source is the
// explorer's gas oracle; the fallback is a raw eth_gasPrice converted to the
// same units.
func (c *StructuredClient) FetchGas(ctx context.Context) (*model.StructuredData, error) {
	var payload struct {
		Status string `json:"status"`
		Result struct {
			FastGasPrice string `json:"FastGasPrice"`
		} `json:"result"`
	}
	u := fmt.Sprintf("%s?module=gastracker&action=gasoracle&apikey=%s", c.GasOracleURL, url.QueryEscape(c.EtherscanAPIKey))
	if err := c.getJSON(ctx, u, &payload); err == nil && payload.Status == "1" {
		if gwei, err := strconv.ParseFloat(payload.Result.FastGasPrice, 64); err == nil {
			return &model.StructuredData{Kind: model.EventGas, GasGwei: &gwei, Source: "etherscan_api"}, nil
		}
	}

	if c.Fallback == nil {
		return nil, fmt.Errorf("gas oracle unavailable and no RPC fallback configured")
	}
	wei, err := c.Fallback.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price fallback: %w", err)
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return &model.StructuredData{Kind: model.EventGas, GasGwei: &gwei, Source: "rpc_eth_gasprice"}, nil
}

// coinPayload is schema-optional: the 7-day change may be absent, and the
// layered parser must surface that rather than invent a number.
type coinPayload struct {
	MarketData *struct {
		PriceChange7d *float64 `json:"price_change_percentage_7d"`
	} `json:"market_data"`
}

// FetchPriceChange7d returns the 7-day percentage move for a coin id.
// A payload without the field yields (nil data, nil error): evidence exists
// but carries no structured number.
func (c *StructuredClient) FetchPriceChange7d(ctx context.Context, coinID string) (*model.StructuredData, error) {
	var payload coinPayload
	u := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false",
		c.PriceAPIURL, url.PathEscape(coinID))
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, fmt.Errorf("price fetch %s: %w", coinID, err)
	}
	if payload.MarketData == nil || payload.MarketData.PriceChange7d == nil {
		return nil, nil
	}
	return &model.StructuredData{
		Kind:             model.EventPrice,
		PriceChange7dPct: payload.MarketData.PriceChange7d,
		Source:           "price_api",
	}, nil
}

// FetchWeather returns the current condition keyword (lowercased) at a point.
func (c *StructuredClient) FetchWeather(ctx context.Context, lat, lon float64) (*model.StructuredData, error) {
	var payload struct {
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	}
	u := fmt.Sprintf("%s/weather?lat=%f&lon=%f&appid=%s", c.WeatherAPIURL, lat, lon, url.QueryEscape(c.WeatherAPIKey))
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, fmt.Errorf("weather fetch: %w", err)
	}
	if len(payload.Weather) == 0 {
		return nil, nil
	}
	return &model.StructuredData{
		Kind:             model.EventWeather,
		WeatherCondition: strings.ToLower(payload.Weather[0].Main),
		Source:           "openweathermap",
	}, nil
}
