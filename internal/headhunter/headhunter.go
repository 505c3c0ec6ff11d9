// Package headhunter imports vacancy texts from the public HeadHunter API.
package headhunter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/cv-screener (spigelly@gmail.com)"
)

// ErrNotFound is returned when HeadHunter does not know the vacancy.
var ErrNotFound = errors.New("vacancy not found on HeadHunter")

type Client struct {
	// token is optional: vacancy lookups are public.
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(logger *zap.Logger, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

// GetVacancy fetches a single vacancy with its full description.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("vacancy id is required")
	}

	var v Vacancy
	endpoint := fmt.Sprintf("%s/vacancies/%s", strings.TrimRight(c.APIURL, "/"), url.PathEscape(id))
	if err := c.getJSON(ctx, endpoint, nil, &v); err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get vacancy %s: %w", id, err)
	}

	return &v, nil
}
