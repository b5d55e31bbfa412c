package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
)

// Client fetches the experiment listing from the two console APIs: the
// legacy endpoint, which reports experiments in the Collection's native
// shape, and the newer endpoint, whose records carry branches and a
// reference branch instead of variants.
type Client struct {
	legacyURL string
	nimbusURL string
	http      *http.Client
}

// NewClient creates a catalog client for the given endpoints.
func NewClient(legacyURL, nimbusURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		legacyURL: legacyURL,
		nimbusURL: nimbusURL,
		http:      &http.Client{Timeout: timeout},
	}
}

// nimbusBranch mirrors the newer API's branch records.
type nimbusBranch struct {
	Slug string `json:"slug"`
}

// nimbusExperiment mirrors the newer API's experiment records.
type nimbusExperiment struct {
	Slug            string         `json:"slug"`
	UserFacingName  string         `json:"userFacingName"`
	Branches        []nimbusBranch `json:"branches"`
	StartDate       *time.Time     `json:"startDate"`
	ReferenceBranch *string        `json:"referenceBranch"`
}

// toExperiment converts a nimbus record. Records without a start date have
// never launched and produce no experiment.
func (n nimbusExperiment) toExperiment() (Experiment, bool) {
	if n.StartDate == nil {
		return Experiment{}, false
	}
	variants := make([]Variant, 0, len(n.Branches))
	for _, b := range n.Branches {
		variants = append(variants, Variant{
			Slug:        b.Slug,
			Description: b.Slug,
			IsControl:   n.ReferenceBranch != nil && b.Slug == *n.ReferenceBranch,
		})
	}
	return Experiment{
		Name:         n.UserFacingName,
		Slug:         n.Slug,
		NormandySlug: n.Slug,
		Variants:     variants,
		StartDate:    n.StartDate.UTC().UnixMilli(),
	}, true
}

// Fetch retrieves and merges both listings into a Collection.
func (c *Client) Fetch(ctx context.Context) (*Collection, error) {
	coll := &Collection{Experiments: map[string]Experiment{}}

	var legacy []Experiment
	if err := c.getJSON(ctx, c.legacyURL, &legacy); err != nil {
		return nil, berrors.CatalogFailure(err, "fetch legacy experiment listing")
	}
	for _, e := range legacy {
		coll.Experiments[e.FileSlug()] = e
	}

	var nimbus []nimbusExperiment
	if err := c.getJSON(ctx, c.nimbusURL, &nimbus); err != nil {
		return nil, berrors.CatalogFailure(err, "fetch nimbus experiment listing")
	}
	for _, n := range nimbus {
		if e, ok := n.toExperiment(); ok {
			coll.Experiments[e.FileSlug()] = e
		}
	}

	return coll, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
