package types

// SearchType classifies what a query is looking for
type SearchType string

const (
	SearchTypeProduct SearchType = "product"
	SearchTypeStore   SearchType = "store"
)

// QueryDescriptor is the structured output of the intent parser. Query holds
// the raw user text so routing guards can inspect the original phrasing; the
// remaining fields are the parser's interpretation of it.
type QueryDescriptor struct {
	Query      string     `json:"query,omitempty"`
	Term       string     `json:"term"`
	SearchType SearchType `json:"search_type"`
	IsLatest   bool       `json:"is_latest,omitempty"`
	Account    string     `json:"account,omitempty"`
}
