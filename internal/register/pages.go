package register

// PageSplit locates a row inside a paged listing.
type PageSplit struct {
	// PageCount is the total number of pages.
	PageCount int
	// Page is the 1-based page carrying the anchor row.
	Page int
	// Offset is the first row index of that page.
	Offset int
}

// SplitToPages computes pagination for a listing of total rows with
// the anchor row at position anchorPos (zero-based). A negative anchor
// lands on the first page; an anchor past the end lands on the last.
func SplitToPages(total, anchorPos, pageSize int) PageSplit {
	if pageSize <= 0 {
		pageSize = 1
	}
	if total < 0 {
		total = 0
	}

	pageCount := total / pageSize
	if total%pageSize != 0 || pageCount == 0 {
		pageCount++
	}

	if anchorPos < 0 {
		anchorPos = 0
	}
	if anchorPos >= total && total > 0 {
		anchorPos = total - 1
	}

	page := anchorPos/pageSize + 1
	if page > pageCount {
		page = pageCount
	}

	return PageSplit{
		PageCount: pageCount,
		Page:      page,
		Offset:    (page - 1) * pageSize,
	}
}
