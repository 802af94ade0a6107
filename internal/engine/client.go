package engine

import (
	"cdvs/internal/coords"
	"cdvs/internal/descriptor"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
	"cdvs/internal/types"
)

// Client encodes feature sets in one mode.
type Client struct {
	params *params.Parameters
	enc    *descriptor.Encoder
}

// NewClient creates a client for mode.
func NewClient(ps *params.ParameterSet, mode int, m *scfv.Model) (*Client, error) {
	p, err := ps.Get(mode)
	if err != nil {
		return nil, err
	}
	enc, err := descriptor.NewEncoder(p, m)
	if err != nil {
		return nil, err
	}
	return &Client{params: p, enc: enc}, nil
}

// WithCoordinateTables replaces the built-in coordinate coding tables.
func (c *Client) WithCoordinateTables(t coords.Tables) *Client {
	c.enc.WithCoordinateTables(t)
	return c
}

// Parameters returns the mode parameters of the client.
func (c *Client) Parameters() *params.Parameters { return c.params }

// Encode produces the descriptor of fs.
func (c *Client) Encode(fs *types.FeatureSet) ([]byte, *descriptor.Descriptor, error) {
	return c.enc.Encode(fs)
}
