package registry

import (
	"strings"

	"github.com/regsalud/exequatur/normalize"
)

// Positional column layouts per retrieval strategy, used when the result
// table carries no recognizable headers. The rendered search UI shows a
// four-column summary table; the underlying application returns the full
// folio layout.
var (
	InteractiveColumns = []Field{
		FieldName, FieldIdentity, FieldDecree, FieldRegistration,
	}
	PostbackColumns = []Field{
		FieldName, FieldProfession, FieldUniversity, FieldRegistration,
		FieldRegistrationDate, FieldFolio, FieldBook, FieldDecree, FieldIdentity,
	}
)

// headerStems maps diacritic-stripped header fragments to fields. Matched
// by substring so "Nombre Completo" and "Nombres" both land on FieldName.
var headerStems = []struct {
	stem  string
	field Field
}{
	{"nombre", FieldName},
	{"cedula", FieldIdentity},
	{"identidad", FieldIdentity},
	{"profesion", FieldProfession},
	{"carrera", FieldProfession},
	{"universidad", FieldUniversity},
	{"fecha", FieldRegistrationDate},
	{"registro", FieldRegistration},
	{"folio", FieldFolio},
	{"libro", FieldBook},
	{"decreto", FieldDecree},
	{"exequatur", FieldDecree},
}

// FromRow maps one table row to a Record in two phases: header-driven
// assignment first, and when fewer than two headers are recognized, fixed
// positional assignment with the given layout. Both phases skip empty
// cells; surplus cells are dropped.
func FromRow(headers, cells []string, positional []Field) Record {
	if fields, ok := headerFields(headers); ok {
		return assign(fields, cells)
	}
	return assign(positional, cells)
}

// headerFields resolves header texts to fields. It reports ok only when at
// least two headers are recognized; a lone hit is likelier to be a
// coincidence than a real header row.
func headerFields(headers []string) ([]Field, bool) {
	if len(headers) == 0 {
		return nil, false
	}
	fields := make([]Field, len(headers))
	recognized := 0
	for i, h := range headers {
		normalized := normalize.Normalize(h)
		for _, s := range headerStems {
			if strings.Contains(normalized, s.stem) {
				fields[i] = s.field
				recognized++
				break
			}
		}
	}
	return fields, recognized >= 2
}

func assign(fields []Field, cells []string) Record {
	record := make(Record, len(fields))
	for i, cell := range cells {
		if i >= len(fields) {
			break
		}
		field := fields[i]
		cell = strings.TrimSpace(cell)
		if field == "" || cell == "" {
			continue
		}
		record[field] = cell
	}
	return record
}
