package utils

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination 分页请求参数，餐券和退款流水默认每页 20 条
type Pagination struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

// PageResult 分页响应结果
type PageResult struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Pages int         `json:"pages"`
}

// GetPageOffset 计算分页偏移量
func (p *Pagination) GetPageOffset() (int, int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return (p.Page - 1) * p.Limit, p.Limit
}

// NewPageResult 组装分页结果，p 需已经过 GetPageOffset 归一化
func NewPageResult(list interface{}, total int64, p Pagination) PageResult {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PageResult{List: list, Total: total, Page: p.Page, Limit: p.Limit, Pages: pages}
}
