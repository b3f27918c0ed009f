package model

import "strings"

// OrderTag is the logical role of an order, carried inside its client order id
// so exchange events can be routed back to the slot that placed it.
type OrderTag string

const (
	TagNone          OrderTag = ""
	TagEntry         OrderTag = "ENTRY"
	TagEqualizeQuote OrderTag = "EQUALIZE_QUOTE"
	TagEqualizeBase  OrderTag = "EQUALIZE_BASE"
)

// knownTags is ordered longest first so a tag that ends with another never
// shadows it.
var knownTags = []OrderTag{TagEqualizeQuote, TagEqualizeBase, TagEntry}

const tagSeparator = "-"

// ClientOrderID is the structured form of the opaque client order id string.
type ClientOrderID struct {
	Prefix string   `json:"prefix"` // usually the unix-ms submission time
	Tag    OrderTag `json:"tag"`
}

// NewClientOrderID builds an id for the given role.
func NewClientOrderID(prefix string, tag OrderTag) ClientOrderID {
	return ClientOrderID{Prefix: prefix, Tag: tag}
}

// String renders the id sent to the exchange: "<prefix>-<TAG>", or just the
// prefix when untagged.
func (id ClientOrderID) String() string {
	if id.Tag == TagNone {
		return id.Prefix
	}
	return id.Prefix + tagSeparator + string(id.Tag)
}

// ParseClientOrderID recovers the structured id. Only known tags are matched,
// and only as a whole trailing segment, so a prefix may itself contain the
// separator. Ids placed by other tools come back untagged with the whole
// string as prefix.
func ParseClientOrderID(s string) ClientOrderID {
	for _, tag := range knownTags {
		suffix := tagSeparator + string(tag)
		if strings.HasSuffix(s, suffix) {
			return ClientOrderID{Prefix: strings.TrimSuffix(s, suffix), Tag: tag}
		}
	}
	return ClientOrderID{Prefix: s}
}

func (id ClientOrderID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ClientOrderID) UnmarshalText(b []byte) error {
	*id = ParseClientOrderID(string(b))
	return nil
}
