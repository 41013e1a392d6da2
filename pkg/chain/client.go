package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/stakeside/cashgame/pkg/errs"
)

// Client reads contract state from a provider gateway over HTTP.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a Client against the provider gateway at base, e.g.
// "http://localhost:8545".
func NewClient(base string) *Client {
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Reader = (*Client)(nil)

func (c *Client) Lineup(ctx context.Context, tableAddr string) (*Lineup, error) {
	var lu Lineup
	if err := c.get(ctx, fmt.Sprintf("%s/table/%s/lineup", c.base, tableAddr), &lu); err != nil {
		return nil, err
	}
	return &lu, nil
}

func (c *Client) SmallBlind(ctx context.Context, tableAddr string) (int64, error) {
	var resp struct {
		SmallBlind int64 `json:"smallBlind"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/table/%s/config", c.base, tableAddr), &resp); err != nil {
		return 0, err
	}
	return resp.SmallBlind, nil
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errorsmod.Wrap(errs.ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned %s for %s", resp.Status, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
