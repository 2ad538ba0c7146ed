package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextWithQuery(""))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(contextWithQuery("limit=10&offset=30"))

	if p.Limit != 10 {
		t.Errorf("expected limit 10, got %d", p.Limit)
	}
	if p.Offset != 30 {
		t.Errorf("expected offset 30, got %d", p.Offset)
	}
}

func TestFromContext_Clamping(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"limit=500", MaxLimit, 0},
		{"limit=0", DefaultLimit, 0},
		{"limit=-3", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
		{"offset=-10", DefaultLimit, 0},
		{"offset=9223372036854775807", DefaultLimit, MaxOffset},
		{"offset=99999999999999999999", DefaultLimit, MaxOffset},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := FromContext(contextWithQuery(tt.query))
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d",
					p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestFromContext_HugeOffsetHasNoNextPage(t *testing.T) {
	p := FromContext(contextWithQuery("limit=100&offset=9223372036854775807"))
	resp := NewResponse([]string{}, 3, p).WithLinks("/api/v1/requests/mine", url.Values{})

	if resp.HasMore {
		t.Error("expected hasMore=false past the last page")
	}
	if resp.Links.Next != "" {
		t.Errorf("expected no next link, got %q", resp.Links.Next)
	}
	if resp.Links.Previous == "" {
		t.Error("expected a previous link")
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b"}
	resp := NewResponse(data, 50, Params{Limit: 20, Offset: 0})

	if resp.Total != 50 {
		t.Errorf("expected total 50, got %d", resp.Total)
	}
	if !resp.HasMore {
		t.Error("expected has more")
	}
	if resp.Links != nil {
		t.Error("expected no links until WithLinks")
	}

	last := NewResponse(data, 50, Params{Limit: 20, Offset: 40})
	if last.HasMore {
		t.Error("expected last page to have no more")
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		offset, limit, total int
		want                 bool
	}{
		{0, 10, 25, true},
		{10, 10, 25, true},
		{20, 10, 25, false},
		{0, 10, 10, false},
		{0, 10, 0, false},
	}
	for _, tt := range tests {
		p := Params{Limit: tt.limit, Offset: tt.offset}
		if got := p.HasNext(tt.total); got != tt.want {
			t.Errorf("HasNext(offset=%d, limit=%d, total=%d) = %v, want %v",
				tt.offset, tt.limit, tt.total, got, tt.want)
		}
	}
}

func TestParams_PreviousOffset(t *testing.T) {
	tests := []struct {
		offset, limit, want int
	}{
		{0, 10, 0},
		{5, 10, 0},
		{10, 10, 0},
		{25, 10, 15},
	}
	for _, tt := range tests {
		p := Params{Limit: tt.limit, Offset: tt.offset}
		if got := p.PreviousOffset(); got != tt.want {
			t.Errorf("PreviousOffset(offset=%d, limit=%d) = %d, want %d", tt.offset, tt.limit, got, tt.want)
		}
	}
	if (Params{Offset: 0}).HasPrevious() {
		t.Error("first page has no previous")
	}
	if got := (Params{Limit: 10, Offset: 20}).NextOffset(); got != 30 {
		t.Errorf("NextOffset = %d, want 30", got)
	}
}

func TestResponse_WithLinks_MiddlePage(t *testing.T) {
	query := url.Values{"type": {"appointment_booking"}, "limit": {"999"}}
	resp := NewResponse(nil, 45, Params{Limit: 10, Offset: 20}).
		WithLinks("/api/v1/requests/mine", query)

	links := resp.Links
	if links == nil {
		t.Fatal("expected links")
	}
	if links.Self != "/api/v1/requests/mine?limit=10&offset=20&type=appointment_booking" {
		t.Errorf("unexpected self link %q", links.Self)
	}
	if links.Next != "/api/v1/requests/mine?limit=10&offset=30&type=appointment_booking" {
		t.Errorf("unexpected next link %q", links.Next)
	}
	if links.Previous != "/api/v1/requests/mine?limit=10&offset=10&type=appointment_booking" {
		t.Errorf("unexpected previous link %q", links.Previous)
	}
	if query.Get("limit") != "999" {
		t.Error("WithLinks must not modify the caller's query")
	}
}

func TestResponse_WithLinks_SinglePage(t *testing.T) {
	resp := NewResponse(nil, 3, Params{Limit: 20}).WithLinks("/r", nil)

	if resp.Links.Next != "" || resp.Links.Previous != "" {
		t.Errorf("expected only a self link, got %+v", resp.Links)
	}
	if resp.Links.Self != "/r?limit=20&offset=0" {
		t.Errorf("unexpected self link %q", resp.Links.Self)
	}
}
