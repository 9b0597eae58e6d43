package llm

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/expense-auditor/constants"
)

// aliases lists accepted response keys per canonical field, canonical name first.
// Keys are compared after foldKey.
var aliases = map[SchemaKind]map[string][]string{
	SchemaExpense: {
		constants.FieldMerchantName:    {"merchant_name", "merchant", "vendor", "store", "nom du commerce", "nom_commerce", "commerce"},
		constants.FieldTransactionDate: {"transaction_date", "tx_date", "date", "invoice_date", "date de la facture", "date_facture"},
		constants.FieldTotalAmount:     {"total_amount", "total", "amount", "montant total", "montant_total", "montant"},
		constants.FieldAddress:         {"address", "full_address", "adresse complète", "adresse_complete", "adresse"},
		constants.FieldCity:            {"city", "ville"},
	},
	SchemaReference: {
		constants.FieldTravelerName:    {"traveler_name", "traveller_name", "employee_name", "name", "nom de l'employé", "nom_employe"},
		constants.FieldDestinationCity: {"destination_city", "destination", "city", "ville de destination", "ville_deplacement"},
		constants.FieldStartDate:       {"start_date", "departure_date", "date de début", "date_depart"},
		constants.FieldEndDate:         {"end_date", "return_date", "date de fin", "date_retour"},
		constants.FieldPurpose:         {"purpose", "mission_purpose", "objet de la mission", "objet_mission", "objet"},
	},
}

var sentinels = map[string]struct{}{
	"":               {},
	"unknown":        {},
	"inconnu":        {},
	"inconnue":       {},
	"non disponible": {},
	"not available":  {},
	"n/a":            {},
	"na":             {},
	"none":           {},
	"null":           {},
	"-":              {},
}

var dateFields = map[string]struct{}{
	constants.FieldTransactionDate: {},
	constants.FieldStartDate:       {},
	constants.FieldEndDate:         {},
}

var dateLayouts = []string{
	constants.DateLayout,
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2/1/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2 January 2006",
	"January 2, 2006",
}

// DeclaredFields returns the canonical field names of a schema kind, in prompt order.
func DeclaredFields(kind SchemaKind) []string {
	if kind == SchemaReference {
		return constants.ReferenceFields
	}
	return constants.ExpenseFields
}

// NormalizeFields maps a decoded response onto the declared fields of kind.
// Declared fields the response omits become "unknown". Unrecognized keys are dropped and returned.
func NormalizeFields(kind SchemaKind, raw map[string]any) (Fields, []string) {
	folded := make(map[string]any, len(raw))
	foldedFrom := make(map[string]string, len(raw))
	for k, v := range raw {
		fk := foldKey(k)
		if _, dup := folded[fk]; dup {
			continue
		}
		folded[fk] = v
		foldedFrom[fk] = k
	}

	used := make(map[string]struct{}, len(raw))
	out := make(Fields, len(DeclaredFields(kind)))
	table := aliases[kind]
	for _, field := range DeclaredFields(kind) {
		out[field] = constants.Unknown
		for _, alias := range table[field] {
			fk := foldKey(alias)
			v, ok := folded[fk]
			if !ok {
				continue
			}
			used[fk] = struct{}{}
			if s := scalarString(v); !IsSentinel(s) {
				if _, isDate := dateFields[field]; isDate {
					s = NormalizeDate(s)
				}
				out[field] = s
				break
			}
		}
	}

	var dropped []string
	for fk, orig := range foldedFrom {
		if _, ok := used[fk]; !ok {
			dropped = append(dropped, orig)
		}
	}
	sort.Strings(dropped)
	return out, dropped
}

// IsSentinel reports whether s means "not readable" in any of the forms models produce.
func IsSentinel(s string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// NormalizeDate rewrites recognizable date spellings as YYYY-MM-DD; anything else is returned trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(constants.DateLayout)
		}
	}
	return s
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		// objects, arrays and booleans carry no usable field value
		return ""
	}
}

func foldKey(k string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, k)
	if err != nil {
		s = k
	}
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSep = false
			continue
		}
		if !lastSep && b.Len() > 0 {
			b.WriteByte('_')
			lastSep = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
