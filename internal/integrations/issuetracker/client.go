package issuetracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

const (
	serviceName = "issue tracker"
	pageSize    = 100
	maxPages    = 20
)

const issuesQuery = `query IssueStates($first: Int!, $after: String) {
  issues(first: $first, after: $after) {
    nodes { state { name type } }
    pageInfo { hasNextPage endCursor }
  }
}`

// StateCount is the number of issues in one workflow state.
type StateCount struct {
	State string `json:"state"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type Summary struct {
	Total   int          `json:"total"`
	ByState []StateCount `json:"by_state"`
	// Truncated is set when the page limit stopped the scan early.
	Truncated bool `json:"truncated"`
}

type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient targets the GraphQL endpoint at apiURL using an authorized client.
func NewClient(apiURL string, hc *http.Client) *Client {
	return &Client{endpoint: strings.TrimSpace(apiURL), http: hc}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type issuesResponse struct {
	Data struct {
		Issues struct {
			Nodes []struct {
				State struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"state"`
			} `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"issues"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// IssueSummary pages through issues and counts them by state.
func (c *Client) IssueSummary(ctx context.Context) (Summary, error) {
	counts := map[string]*StateCount{}
	var (
		summary Summary
		cursor  string
	)
	for page := 0; ; page++ {
		if page == maxPages {
			summary.Truncated = true
			break
		}
		vars := map[string]any{"first": pageSize}
		if cursor != "" {
			vars["after"] = cursor
		}
		var resp issuesResponse
		if err := c.do(ctx, graphQLRequest{Query: issuesQuery, Variables: vars}, &resp); err != nil {
			return Summary{}, apperr.ExternalAPI(serviceName, err)
		}
		for _, node := range resp.Data.Issues.Nodes {
			sc, ok := counts[node.State.Name]
			if !ok {
				sc = &StateCount{State: node.State.Name, Type: node.State.Type}
				counts[node.State.Name] = sc
			}
			sc.Count++
			summary.Total++
		}
		info := resp.Data.Issues.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			break
		}
		cursor = info.EndCursor
	}

	summary.ByState = make([]StateCount, 0, len(counts))
	for _, sc := range counts {
		summary.ByState = append(summary.ByState, *sc)
	}
	sort.Slice(summary.ByState, func(i, j int) bool {
		if summary.ByState[i].Count != summary.ByState[j].Count {
			return summary.ByState[i].Count > summary.ByState[j].Count
		}
		return summary.ByState[i].State < summary.ByState[j].State
	})
	return summary, nil
}

func (c *Client) do(ctx context.Context, payload graphQLRequest, out *issuesResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("graphql: %s", out.Errors[0].Message)
	}
	return nil
}
