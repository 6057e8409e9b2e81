package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// PageParams describes one page of a list endpoint.
type PageParams struct {
	Page    int
	Limit   int
	Sort    string
	Order   string
	Filters map[string]string
}

// Values flattens the params into a query. Filters cannot override the paging keys.
func (p PageParams) Values() url.Values {
	q := url.Values{}
	for k, v := range p.Filters {
		if k == "" || v == "" {
			continue
		}
		q.Set(k, v)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	} else {
		q.Del("sort")
	}
	if p.Order != "" {
		q.Set("order", p.Order)
	} else {
		q.Del("order")
	}
	return q
}

// Page is one page of T plus the paging metadata reported by the server.
type Page[T any] struct {
	Items      []T
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// pageEnvelope is the list response body: {"data": [...], "pagination": {...}}.
type pageEnvelope[T any] struct {
	Data       []T `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

// HasNext reports whether another page follows this one.
func (p *Page[T]) HasNext() bool {
	if len(p.Items) == 0 {
		return false
	}
	if p.TotalPages > 0 {
		return p.Page < p.TotalPages
	}
	return p.Limit > 0 && p.Page*p.Limit < p.Total
}

// GetPaginated fetches one page of path.
func GetPaginated[T any](ctx context.Context, c *Client, path string, params PageParams) (*Page[T], error) {
	resp, err := c.exec.Do(ctx, Call{Method: http.MethodGet, Path: path, Query: params.Values()})
	if err != nil {
		return nil, err
	}

	var env pageEnvelope[T]
	if err := decodeBody(resp, &env); err != nil {
		return nil, err
	}
	page := &Page[T]{
		Items:      env.Data,
		Page:       env.Pagination.Page,
		Limit:      env.Pagination.Limit,
		Total:      env.Pagination.Total,
		TotalPages: env.Pagination.TotalPages,
	}
	if page.Page == 0 {
		page.Page = max(params.Page, 1)
	}
	if page.Limit == 0 {
		page.Limit = params.Limit
	}
	return page, nil
}

// AllPages walks every page starting at params.Page and returns the concatenated items.
func AllPages[T any](ctx context.Context, c *Client, path string, params PageParams) ([]T, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	var all []T
	for {
		page, err := GetPaginated[T](ctx, c, path, params)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.HasNext() {
			return all, nil
		}
		params.Page = page.Page + 1
	}
}
