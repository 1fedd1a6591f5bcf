package ledger

import (
	"fmt"
	"strings"
)

// EventKind names the closed set of inbound events the engine evaluates.
type EventKind string

const (
	EventVisit     EventKind = "visit"
	EventComment   EventKind = "comment"
	EventOrderPaid EventKind = "order_paid"
	EventProfile   EventKind = "profile"
)

// Event is implemented only by the event types in this package.
type Event interface {
	Kind() EventKind
	Validate() error
}

// ValidationError reports a missing or malformed event field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Visit is an engagement ping. When Comment is set the visit also reports a
// comment on ArticleID and asks for that article's comment reward; the
// article is ignored otherwise.
type Visit struct {
	Today     Date
	ArticleID string
	Comment   bool
}

func (Visit) Kind() EventKind { return EventVisit }

func (v Visit) Validate() error {
	if v.Today.IsZero() {
		return &ValidationError{Field: "today", Message: "required"}
	}
	if v.Comment && strings.TrimSpace(v.ArticleID) == "" {
		return &ValidationError{Field: "articleId", Message: "required for comment events"}
	}
	return nil
}

// Comment is a comment created on an article.
type Comment struct {
	ArticleID string
}

func (Comment) Kind() EventKind { return EventComment }

func (c Comment) Validate() error {
	if strings.TrimSpace(c.ArticleID) == "" {
		return &ValidationError{Field: "articleId", Message: "required for comment events"}
	}
	return nil
}

// OrderPaid is a paid order eligible for the percentage rebate.
type OrderPaid struct {
	OrderID    string
	OrderName  string
	CustomerID string
	Subtotal   Money
}

func (OrderPaid) Kind() EventKind { return EventOrderPaid }

func (o OrderPaid) Validate() error {
	switch {
	case strings.TrimSpace(o.OrderID) == "":
		return &ValidationError{Field: "orderId", Message: "required"}
	case strings.TrimSpace(o.CustomerID) == "":
		return &ValidationError{Field: "customerKey", Message: "required"}
	case o.Subtotal.Currency == "":
		return &ValidationError{Field: "currencyCode", Message: "required"}
	case o.Subtotal.AmountMinor < 0:
		return &ValidationError{Field: "subtotal", Message: "must not be negative"}
	}
	return nil
}

// ProfileUpdate is a customer-initiated profile change.
type ProfileUpdate struct {
	Today  Date
	Origin string
	Change ProfileChange
}

func (ProfileUpdate) Kind() EventKind { return EventProfile }

func (p ProfileUpdate) Validate() error {
	if p.Change.IsEmpty() {
		return &ValidationError{Field: "profile", Message: "no fields to update"}
	}
	if p.Today.IsZero() {
		return &ValidationError{Field: "today", Message: "required"}
	}
	return nil
}
