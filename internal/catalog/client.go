package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
)

const cacheKeyPrefix = "enrollment:course:"

// Client reads course entries from the content source. Entries are cached in
// Redis because the content source is slow and rate limited.
type Client struct {
	baseURL  string
	apiToken string
	http     *resty.Client
	redis    *redis.Client
	ttl      time.Duration
	logger   *logger.Logger
}

func NewClient(baseURL, apiToken string, httpClient *resty.Client, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		http:     httpClient,
		redis:    rdb,
		ttl:      ttl,
		logger:   log,
	}
}

// CourseByID returns nil without error when the content source has no such course.
func (c *Client) CourseByID(ctx context.Context, courseID string) (*models.Course, error) {
	if course := c.fromCache(ctx, courseID); course != nil {
		return course, nil
	}

	var course models.Course
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("id", courseID).
		SetResult(&course)
	if c.apiToken != "" {
		req.SetAuthToken(c.apiToken)
	}
	resp, err := req.Get(c.baseURL + "/courses/{id}")
	if err != nil {
		return nil, fmt.Errorf("course request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		if course.ID == "" {
			course.ID = courseID
		}
		c.store(ctx, &course)
		return &course, nil
	case http.StatusNotFound:
		c.logger.Debug("CATALOG", fmt.Sprintf("Course %s not found", courseID))
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode())
	}
}

func (c *Client) fromCache(ctx context.Context, courseID string) *models.Course {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, cacheKeyPrefix+courseID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("CATALOG", fmt.Sprintf("Course cache read failed: %v", err))
		}
		return nil
	}
	var course models.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return nil
	}
	return &course
}

func (c *Client) store(ctx context.Context, course *models.Course) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(course)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKeyPrefix+course.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("CATALOG", fmt.Sprintf("Course cache write failed: %v", err))
	}
}
