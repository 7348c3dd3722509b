package francetravail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const (
	SearchPath = "/v2/offres/search"

	// Fallbacks for postings with missing fields. The API omits them
	// regularly; a hole in the data must not abort a whole search.
	fallbackTitle   = "Titre non précisé"
	fallbackCompany = "Non précisé"
	fallbackURL     = "#"

	// Hard cap of the search endpoint's range parameter.
	maxRange = 150
)

// Posting is one job advertisement as consumed by the analysis pipeline.
type Posting struct {
	Title       string
	Company     string
	URL         string
	Description string
}

type searchResponse struct {
	Resultats []map[string]any `json:"resultats"`
}

type offre struct {
	Intitule    string `json:"intitule"`
	Description string `json:"description"`
	Entreprise  struct {
		Nom string `json:"nom"`
	} `json:"entreprise"`
	OrigineOffre struct {
		URLOrigine string `json:"urlOrigine"`
	} `json:"origineOffre"`
}

// Search fetches up to maxCount postings matching the free-text query.
// A 204 from the API means no results and yields an empty, non-error slice.
func (c *Client) Search(ctx context.Context, query string, maxCount int) ([]Posting, error) {
	if maxCount <= 0 || maxCount > maxRange {
		maxCount = maxRange
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	q := url.Values{}
	q.Set("motsCles", query)
	q.Set("range", fmt.Sprintf("0-%d", maxCount-1))
	q.Set("sort", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+SearchPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Accept", "application/json")
	req.URL.RawQuery = q.Encode()

	c.logger.Debug("searching offers", zap.String("query", query), zap.Int("max_count", maxCount))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		c.logger.Info("no offers received", zap.String("query", query))
		return []Posting{}, nil
	}

	// The API answers 206 when the requested range does not cover the
	// full result set, which is the common case.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("search request: bad status: %s", resp.Status)
	}

	var response searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("search request: decode response: %w", err)
	}

	var offres []offre
	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &offres,
		TagName:  "json",
	}
	decoder, _ := mapstructure.NewDecoder(cfg)
	if err := decoder.Decode(response.Resultats); err != nil {
		return nil, fmt.Errorf("search request: decode offers: %w", err)
	}

	postings := make([]Posting, 0, len(offres))
	for _, o := range offres {
		postings = append(postings, o.toPosting())
	}

	c.logger.Info("offers received", zap.String("query", query), zap.Int("count", len(postings)))

	return postings, nil
}

func (o offre) toPosting() Posting {
	p := Posting{
		Title:       o.Intitule,
		Company:     o.Entreprise.Nom,
		URL:         o.OrigineOffre.URLOrigine,
		Description: o.Description,
	}
	if p.Title == "" {
		p.Title = fallbackTitle
	}
	if p.Company == "" {
		p.Company = fallbackCompany
	}
	if p.URL == "" {
		p.URL = fallbackURL
	}
	return p
}
