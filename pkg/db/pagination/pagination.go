package pagination

// Pagination carries offset-based paging parameters from query strings.
type Pagination struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=25" validate:"gte=1,lte=250"` // Min 1, Max 250
}

type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	HasMore  bool  `json:"has_more"`
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 25
	}
	if p.PageSize > 250 {
		p.PageSize = 250
	}
	return p
}

func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

func BuildPageInfo(total int64, p Pagination) PageInfo {
	n := p.Normalize()
	return PageInfo{
		Page:     n.Page,
		PageSize: n.PageSize,
		Total:    total,
		HasMore:  int64(n.Offset()+n.PageSize) < total,
	}
}
