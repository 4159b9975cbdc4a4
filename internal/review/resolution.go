package review

import (
	"strings"

	"pmbot/internal/poller"
)

// Strategy selects who receives a review. Configured once, not per event.
type Strategy string

const (
	StrategyFixed  Strategy = "fixed"  // always the configured recipient id
	StrategyAuthor Strategy = "author" // map the PR author's username
	StrategyOwner  Strategy = "owner"  // map the repository owner's username
)

type ResolutionKind int

const (
	Unresolved ResolutionKind = iota
	FixedUser
	MappedUser
)

// Resolution is the outcome of recipient resolution for one event. It is
// computed per event and never cached.
type Resolution struct {
	Kind        ResolutionKind
	RecipientID string

	// Username is the platform username the resolution was attempted for
	// (empty for fixed recipients); used to reference the intended
	// recipient in fallback messages.
	Username string
}

// Lookup is the username → recipient-id table (the mapping service).
type Lookup interface {
	Get(username string) (string, bool)
}

// Resolve computes the recipient for a merged-PR event. Unmapped usernames
// resolve to Unresolved, which routes straight to fallback delivery.
func Resolve(strategy Strategy, fixedID string, ev poller.MergedPREvent, lookup Lookup) Resolution {
	switch strategy {
	case StrategyFixed:
		if strings.TrimSpace(fixedID) != "" {
			return Resolution{Kind: FixedUser, RecipientID: fixedID}
		}
		return Resolution{Kind: Unresolved}

	case StrategyOwner:
		owner := ev.Repo
		if i := strings.IndexByte(owner, '/'); i > 0 {
			owner = owner[:i]
		}
		return lookupUser(owner, lookup)

	case StrategyAuthor:
		fallthrough
	default:
		return lookupUser(ev.Author, lookup)
	}
}

func lookupUser(username string, lookup Lookup) Resolution {
	if lookup == nil || username == "" {
		return Resolution{Kind: Unresolved, Username: username}
	}
	if id, ok := lookup.Get(username); ok {
		return Resolution{Kind: MappedUser, RecipientID: id, Username: username}
	}
	return Resolution{Kind: Unresolved, Username: username}
}
