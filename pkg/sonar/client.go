package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MetricKeys is the fixed metric set requested from the measures API.
var MetricKeys = []string{
	"bugs",
	"vulnerabilities",
	"code_smells",
	"coverage",
	"duplicated_lines_density",
	"reliability_rating",
	"security_rating",
	"sqale_rating",
	"complexity",
	"ncloc",
	"comment_lines_density",
}

// Config carries the connection settings for the analysis server.
type Config struct {
	ServerURL    string
	Token        string
	Organization string
	Timeout      time.Duration
}

// MeasuresClient retrieves computed measures for an analyzed project key.
type MeasuresClient interface {
	FetchMeasures(ctx context.Context, projectKey string) (map[string]string, error)
}

type client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient constructs a measures client against the configured server.
func NewClient(cfg Config, logger zerolog.Logger) (MeasuresClient, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("sonar server url must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "sonar_client").Logger(),
	}, nil
}

type measuresResponse struct {
	Component struct {
		Key      string `json:"key"`
		Measures []struct {
			Metric string `json:"metric"`
			Value  string `json:"value"`
		} `json:"measures"`
	} `json:"component"`
}

// FetchMeasures queries the measures endpoint for the fixed metric set and
// returns the values keyed by metric name. Metrics the engine has not
// computed yet are simply absent from the map.
func (c *client) FetchMeasures(ctx context.Context, projectKey string) (map[string]string, error) {
	endpoint := fmt.Sprintf("%s/api/measures/component", strings.TrimRight(c.cfg.ServerURL, "/"))

	query := url.Values{}
	query.Set("component", projectKey)
	query.Set("metricKeys", strings.Join(MetricKeys, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build measures request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("measures request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("measures endpoint returned status %d for component %s", resp.StatusCode, projectKey)
	}

	var payload measuresResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode measures response: %w", err)
	}

	measures := make(map[string]string, len(payload.Component.Measures))
	for _, measure := range payload.Component.Measures {
		measures[measure.Metric] = measure.Value
	}

	c.logger.Debug().Str("project_key", projectKey).Int("measures", len(measures)).Msg("measures retrieved")

	return measures, nil
}
