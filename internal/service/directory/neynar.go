package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// neynarBatchLimit 上游单次最多查询 100 个 fid
const neynarBatchLimit = 100

// NeynarClient 通过 Neynar bulk user 接口批量查询地址
type NeynarClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewNeynarClient(baseURL, apiKey string, timeout time.Duration) *NeynarClient {
	return &NeynarClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type bulkUsersResponse struct {
	Users []struct {
		FID               int64  `json:"fid"`
		CustodyAddress    string `json:"custody_address"`
		VerifiedAddresses struct {
			EthAddresses []string `json:"eth_addresses"`
		} `json:"verified_addresses"`
	} `json:"users"`
}

// FetchAddresses 已验证地址在前, custody 地址在后
func (c *NeynarClient) FetchAddresses(ctx context.Context, fids []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(fids))
	for start := 0; start < len(fids); start += neynarBatchLimit {
		end := start + neynarBatchLimit
		if end > len(fids) {
			end = len(fids)
		}
		if err := c.fetchBatch(ctx, fids[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *NeynarClient) fetchBatch(ctx context.Context, fids []int64, into map[int64][]string) error {
	ids := make([]string, len(fids))
	for i, fid := range fids {
		ids[i] = strconv.FormatInt(fid, 10)
	}

	endpoint := fmt.Sprintf("%s/v2/farcaster/user/bulk?fids=%s", c.baseURL, url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("neynar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("neynar returned status %d", resp.StatusCode)
	}

	var body bulkUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode neynar response: %w", err)
	}

	for _, u := range body.Users {
		addrs := append([]string{}, u.VerifiedAddresses.EthAddresses...)
		if u.CustodyAddress != "" {
			addrs = append(addrs, u.CustodyAddress)
		}
		into[u.FID] = addrs
	}
	return nil
}
