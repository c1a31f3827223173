// Package query encodes mail filters into the Gmail search syntax.
package query

import (
	"strings"
)

// Mail states understood by the search syntax as is:<state>.
const (
	StateUnread    = "unread"
	StateRead      = "read"
	StateStarred   = "starred"
	StateImportant = "important"
)

// Mail folders understood by the search syntax as in:<folder>.
const (
	FolderInbox = "inbox"
	FolderSent  = "sent"
)

// DefaultMaxResults is used when a filter does not set MaxResults.
const DefaultMaxResults = 10

var (
	States  = []string{StateUnread, StateRead, StateStarred, StateImportant}
	Folders = []string{FolderInbox, FolderSent}
)

// FilterSpec is a validated mail filter. Empty fields produce no clause.
// MaxResults and IncludeSpamTrash are passed to the list call, not to the query.
type FilterSpec struct {
	Recipients       []string
	Subject          string
	State            string
	Label            string
	Folder           string
	StartDate        string
	EndDate          string
	MaxResults       int64
	IncludeSpamTrash bool
}

// Limit returns MaxResults or DefaultMaxResults.
func (f FilterSpec) Limit() int64 {
	if f.MaxResults <= 0 {
		return DefaultMaxResults
	}

	return f.MaxResults
}

// Tokens returns the clauses of f in encoding order.
func Tokens(f FilterSpec) []string {
	var tokens []string

	switch len(f.Recipients) {
	case 0:
	case 1:
		tokens = append(tokens, "from:"+f.Recipients[0])
	default:
		from := make([]string, 0, len(f.Recipients))
		for _, r := range f.Recipients {
			from = append(from, "from:"+r)
		}
		tokens = append(tokens, "("+strings.Join(from, " OR ")+")")
	}

	if f.Subject != "" {
		tokens = append(tokens, `subject:"`+f.Subject+`"`)
	}
	if f.State != "" {
		tokens = append(tokens, "is:"+f.State)
	}
	if f.Folder != "" {
		tokens = append(tokens, "in:"+f.Folder)
	}
	if f.StartDate != "" {
		tokens = append(tokens, "after:"+f.StartDate)
	}
	if f.EndDate != "" {
		tokens = append(tokens, "before:"+f.EndDate)
	}
	if f.Label != "" {
		tokens = append(tokens, "label:"+f.Label)
	}

	return tokens
}

// Encode renders f as a single search string.
func Encode(f FilterSpec) string {
	return strings.Join(Tokens(f), " ")
}
