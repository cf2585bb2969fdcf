package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/stitchpay-backend/pkg/config"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

var baseURLs = map[string]string{
	EnvSandbox:    "https://connect.squareupsandbox.com",
	EnvProduction: "https://connect.squareup.com",
}

// Client talks to the Square Payments API for a single location.
type Client struct {
	payments    paymentsAPI
	environment string
	locationID  string
	logger      *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square: environment must be %q or %q, got %q", EnvSandbox, EnvProduction, env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square: access token required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square: location id required")
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
	)

	ctx = logg.WithFields(ctx, map[string]any{"square_env": env, "square_location": location})
	logg.Info(ctx, "square.client.ready")
	return &Client{
		payments:    sdk.Payments,
		environment: env,
		locationID:  location,
		logger:      logg,
	}, nil
}

func (c *Client) Environment() string { return c.environment }

func (c *Client) LocationID() string { return c.locationID }
