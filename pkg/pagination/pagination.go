package pagination

import (
	"math"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxOffset keeps Offset+Limit and the SQL OFFSET well inside int range.
	MaxOffset = math.MaxInt32
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset query parameters, clamping limit to
// (0, MaxLimit] and offset to [0, MaxOffset]. Unparseable values fall back
// to defaults.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		offset = MaxOffset
	}

	return Params{Limit: limit, Offset: offset}
}

// Links are navigation URLs for neighbouring pages. Empty means no page.
type Links struct {
	Self     string `json:"self"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"hasMore"`
	Links   *Links      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// WithLinks fills Links for basePath, carrying the filters in query
// (limit and offset in query are replaced).
func (r *Response) WithLinks(basePath string, query url.Values) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	links := &Links{Self: pageURL(basePath, query, p.Limit, p.Offset)}
	if p.HasNext(r.Total) {
		links.Next = pageURL(basePath, query, p.Limit, p.NextOffset())
	}
	if p.HasPrevious() {
		links.Previous = pageURL(basePath, query, p.Limit, p.PreviousOffset())
	}
	r.Links = links
	return r
}

func pageURL(basePath string, query url.Values, limit, offset int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return basePath + "?" + q.Encode()
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
