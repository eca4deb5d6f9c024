package response

import (
	"fmt"
	"net/url"
)

// Response is the common API envelope. List endpoints fill Count and the
// page links; detail endpoints fill Results only; failures fill Detail.
type Response struct {
	Count    *int    `json:"count,omitempty"`
	Previous *string `json:"previous,omitempty"`
	Next     *string `json:"next,omitempty"`
	Results  any     `json:"results,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// BuildPageLinks derives previous/next page URLs for a list response from
// the request URL. A nil link means no page in that direction.
func BuildPageLinks(u *url.URL, page, pageSize, total int) (prev, next *string) {
	if u == nil || pageSize <= 0 {
		return nil, nil
	}
	link := func(p int) *string {
		q := u.Query()
		q.Set("page", fmt.Sprintf("%d", p))
		q.Set("page_size", fmt.Sprintf("%d", pageSize))
		cp := *u
		cp.RawQuery = q.Encode()
		s := cp.String()
		return &s
	}
	if page > 1 {
		prev = link(page - 1)
	}
	if page*pageSize < total {
		next = link(page + 1)
	}
	return prev, next
}
