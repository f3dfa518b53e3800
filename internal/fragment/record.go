// Package fragment extracts normalized message records from raw rendered
// chat fragments. All host-site DOM heuristics (identity attributes, class
// hints for prose blocks, timestamps and status chips) live in this package
// so that a host redesign only touches this seam.
package fragment

// Message roles derived from the fragment's identity attribute.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record is the canonical unit of a captured transcript. ID is the stable
// identity used for deduplication; content fields are fixed at first
// successful parse, SortKey may be updated on re-observation.
type Record struct {
	ID            string  `json:"id"`
	Role          string  `json:"role"`
	TimestampText string  `json:"timestamp_text"`
	SortKey       float64 `json:"sort_key"`
	ContentMarkup string  `json:"content_markup"`
	ContentText   string  `json:"content_text"`
}

// Candidate is one raw rendered node as collected from the live page:
// its outer HTML and the rendered vertical offset at capture time.
type Candidate struct {
	HTML   string  `json:"html"`
	Offset float64 `json:"offset"`
}
