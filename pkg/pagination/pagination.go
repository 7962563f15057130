package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset page request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing or malformed values fall
// back to the defaults and limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// next returns the offset of the following page, or nil on the last page.
func (p Params) next(total int) *int {
	if p.Offset+p.Limit >= total {
		return nil
	}
	n := p.Offset + p.Limit
	return &n
}

// Response wraps one page of a listing.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	HasMore    bool        `json:"has_more"`
	NextOffset *int        `json:"next_offset,omitempty"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	next := p.next(total)
	return &Response{
		Data:       data,
		Total:      total,
		Limit:      p.Limit,
		Offset:     p.Offset,
		HasMore:    next != nil,
		NextOffset: next,
	}
}
