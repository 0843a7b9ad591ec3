// Package hrplatform reads the employee directory from the HR platform's
// REST API and reduces it to headcount per department.
package hrplatform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/config"
)

const (
	Provider    = "hr-platform"
	serviceName = "hr platform"

	unassignedDepartment = "Unassigned"
)

// ErrNotConfigured is returned when the platform is disabled or missing credentials.
var ErrNotConfigured = apperr.Configuration("hr platform integration is not configured")

type DepartmentCount struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

type Headcount struct {
	Total        int               `json:"total"`
	ByDepartment []DepartmentCount `json:"by_department"`
	RetrievedAt  time.Time         `json:"retrieved_at"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	now     func() time.Time
}

func NewClient(cfg config.HRPlatformConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if !cfg.Enabled || base == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}, nil
}

type directoryResponse struct {
	Employees []struct {
		ID         string `json:"id"`
		Department string `json:"department"`
		Status     string `json:"status"`
	} `json:"employees"`
}

// Headcount counts active employees by department.
func (c *Client) Headcount(ctx context.Context) (Headcount, error) {
	dir, err := c.directory(ctx)
	if err != nil {
		return Headcount{}, apperr.ExternalAPI(serviceName, err)
	}
	counts := map[string]int{}
	total := 0
	for _, e := range dir.Employees {
		if e.Status != "" && !strings.EqualFold(e.Status, "active") {
			continue
		}
		dept := strings.TrimSpace(e.Department)
		if dept == "" {
			dept = unassignedDepartment
		}
		counts[dept]++
		total++
	}
	out := Headcount{Total: total, ByDepartment: make([]DepartmentCount, 0, len(counts)), RetrievedAt: c.now().UTC()}
	for dept, n := range counts {
		out.ByDepartment = append(out.ByDepartment, DepartmentCount{Department: dept, Count: n})
	}
	sort.Slice(out.ByDepartment, func(i, j int) bool {
		a, b := out.ByDepartment[i], out.ByDepartment[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Department < b.Department
	})
	return out, nil
}

func (c *Client) directory(ctx context.Context) (directoryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/employees/directory", nil)
	if err != nil {
		return directoryResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	// The platform authenticates with the key as the basic-auth user.
	req.SetBasicAuth(c.apiKey, "x")
	resp, err := c.http.Do(req)
	if err != nil {
		return directoryResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return directoryResponse{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return directoryResponse{}, fmt.Errorf("decode directory: %w", err)
	}
	return out, nil
}
