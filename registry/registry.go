// Package registry defines the common types for professional-license
// registry lookups: the query identity, the raw candidate record a source
// returns, and the Source capability the retrieval strategies implement.
package registry

import (
	"context"
	"errors"
	"strings"
)

// Errors shared by retrieval sources. All of them mean the registry could
// not be consulted; none of them mean "not found".
var (
	ErrNoQuery           = errors.New("query needs an identity number or a full name")
	ErrSearchUnavailable = errors.New("no usable search input found on registry page")
	ErrFormStateMissing  = errors.New("form state token not found in registry page")
	ErrNoFrame           = errors.New("no embedded frame found on registry entry page")
)

// Query identifies the person to verify. At least one field must be set.
type Query struct {
	IDNumber string // national identity number, digits only
	FullName string // free-text full name, whitespace-collapsed
}

// NewQuery builds a Query from raw caller input: the identity number is
// reduced to its digits and the name is whitespace-collapsed and trimmed.
func NewQuery(idNumber, fullName string) Query {
	return Query{
		IDNumber: Digits(idNumber),
		FullName: strings.Join(strings.Fields(fullName), " "),
	}
}

// Validate reports whether the query carries at least one identifying field.
func (q Query) Validate() error {
	if q.IDNumber == "" && q.FullName == "" {
		return ErrNoQuery
	}
	return nil
}

// Term returns the string submitted to the registry's search form: the
// identity number when present, the full name otherwise.
func (q Query) Term() string {
	if q.IDNumber != "" {
		return q.IDNumber
	}
	return q.FullName
}

// Field names a registry result column.
type Field string

// Columns observed across the registry's result tables. Not every source
// yields every field; identity is only present on ID-capable sources.
const (
	FieldName             Field = "name"
	FieldIdentity         Field = "identity"
	FieldProfession       Field = "profession"
	FieldUniversity       Field = "university"
	FieldRegistration     Field = "registration"
	FieldRegistrationDate Field = "registration_date"
	FieldFolio            Field = "folio"
	FieldBook             Field = "book"
	FieldDecree           Field = "decree"
)

// Record is one result row as extracted by a source. Never mutated after
// creation; ownership passes to the selector for scoring.
type Record map[Field]string

// Name returns the candidate's name column, if any.
func (r Record) Name() string { return r[FieldName] }

// IdentityDigits returns the digits of the candidate's identity number,
// or "" when the source did not yield one.
func (r Record) IdentityDigits() string { return Digits(r[FieldIdentity]) }

// Source is the retrieval capability: given a query, return the registry's
// current candidate rows, or fail with one of the retrieval errors above.
// Implementations own all session state (browser, cookies) per call and
// must release it on every exit path.
type Source interface {
	FetchCandidates(ctx context.Context, q Query) ([]Record, error)
}

// Digits strips everything but ASCII digits from s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
