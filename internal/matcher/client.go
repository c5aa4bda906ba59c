package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"housefinder/server/internal/models"
)

const maxErrorBody = 512

type ClientConfig struct {
	URL       string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
}

// Client calls a matcher over HTTP.
type Client struct {
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

type wireCandidate struct {
	ID   string `json:"id"`
	Info string `json:"info"`
}

type wireRequest struct {
	Query      string          `json:"query"`
	Properties []wireCandidate `json:"properties"`
}

type wireResponse struct {
	MatchedIDs          []string `json:"matchedIds"`
	DestinationLocation *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"destinationLocation"`
	Reasoning        string `json:"reasoning"`
	CommuteEstimates []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"commuteEstimates"`
}

func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Search sends the query and candidate summaries and decodes the decision.
func (c *Client) Search(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, ErrEmptyQuery
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	payload := wireRequest{
		Query:      req.Query,
		Properties: make([]wireCandidate, 0, len(req.Candidates)),
	}
	for i := range req.Candidates {
		payload.Properties = append(payload.Properties, wireCandidate{
			ID:   req.Candidates[i].ID,
			Info: Describe(&req.Candidates[i]),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "HouseFinder/1.0")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).Error("Matcher request failed")
		return Response{}, fmt.Errorf("matcher request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.WithField("status", resp.StatusCode).Warn("Matcher returned an error status")
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	if err := validateResponse(raw); err != nil {
		c.logger.WithError(err).Warn("Matcher response failed validation")
		return Response{}, err
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := Response{
		MatchedIDs:       decoded.MatchedIDs,
		Explanation:      decoded.Reasoning,
		CommuteEstimates: make(map[string]string, len(decoded.CommuteEstimates)),
	}
	if out.MatchedIDs == nil {
		out.MatchedIDs = []string{}
	}
	if loc := decoded.DestinationLocation; loc != nil {
		out.Destination = &models.Point{Lat: loc.Lat, Lng: loc.Lng}
	}
	for _, est := range decoded.CommuteEstimates {
		out.CommuteEstimates[est.ID] = est.Description
	}

	c.logger.WithFields(logrus.Fields{
		"candidates": len(req.Candidates),
		"matched":    len(out.MatchedIDs),
		"duration":   time.Since(start).String(),
	}).Info("Matcher search completed")

	return out, nil
}

// Describe summarizes a property for the matcher.
func Describe(p *models.Property) string {
	parts := []string{
		p.Title,
		string(p.Category),
		fmt.Sprintf("%s元/月", formatFloat(p.Price)),
		p.Location,
		p.Address,
	}
	if len(p.Tags) > 0 {
		parts = append(parts, strings.Join(p.Tags, "/"))
	}
	if len(p.LeaseTerms) > 0 {
		parts = append(parts, "租期: "+strings.Join(p.LeaseTerms, "/"))
	}
	if p.IsMultiUnit() {
		units := make([]string, 0, len(p.Units))
		for _, u := range p.Units {
			units = append(units, fmt.Sprintf("%s %s元", u.Name, formatFloat(u.Price)))
		}
		parts = append(parts, "房间: "+strings.Join(units, "/"))
	}
	return strings.Join(parts, ", ")
}
