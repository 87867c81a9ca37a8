// Package nutritionix is a client for the Nutritionix natural-language
// nutrient endpoint.
package nutritionix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

const DefaultBaseURL = "https://trackapi.nutritionix.com"

// Food is one matched item with per-serving values. Mass values are grams,
// sodium is milligrams.
type Food struct {
	Name        string  `json:"food_name"`
	ServingQty  float64 `json:"serving_qty"`
	ServingUnit string  `json:"serving_unit"`
	Calories    float64 `json:"nf_calories"`
	Protein     float64 `json:"nf_protein"`
	Carbs       float64 `json:"nf_total_carbohydrate"`
	Fat         float64 `json:"nf_total_fat"`
	Fiber       float64 `json:"nf_dietary_fiber"`
	Sugar       float64 `json:"nf_sugars"`
	Sodium      float64 `json:"nf_sodium"`
}

type Totals struct {
	Calories float64
	Protein  float64
	Carbs    float64
	Fat      float64
	Fiber    float64
	Sugar    float64
	Sodium   float64
}

// Sum adds foods field by field.
func Sum(foods []Food) Totals {
	var t Totals
	for _, f := range foods {
		t.Calories += f.Calories
		t.Protein += f.Protein
		t.Carbs += f.Carbs
		t.Fat += f.Fat
		t.Fiber += f.Fiber
		t.Sugar += f.Sugar
		t.Sodium += f.Sodium
	}
	return t
}

type Client interface {
	Lookup(ctx context.Context, query string) ([]Food, error)
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("nutritionix http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

type Config struct {
	AppID   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type client struct {
	log     *logger.Logger
	cfg     Config
	httpCli *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("missing NUTRITIONIX_APP_ID or NUTRITIONIX_API_KEY")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:     log.With("client", "NutritionixClient"),
		cfg:     cfg,
		httpCli: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Lookup(ctx context.Context, query string) ([]Food, error) {
	ctx = ctxutil.Default(ctx)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/natural/nutrients", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-app-id", c.cfg.AppID)
	req.Header.Set("x-app-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nutritionix request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out struct {
		Foods []Food `json:"foods"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("nutritionix decode: %w", err)
	}
	c.log.Debug("nutrient lookup done",
		"request_id", ctxutil.RequestID(ctx),
		"foods", len(out.Foods),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out.Foods, nil
}
