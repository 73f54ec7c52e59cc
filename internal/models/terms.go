// internal/models/terms.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type Exclusivity string

const (
	ExclusivityExclusive         Exclusivity = "exclusive"
	ExclusivityNonExclusive      Exclusivity = "non_exclusive"
	ExclusivityCategoryExclusive Exclusivity = "category_exclusive"
)

// NormalizeExclusivity accepts the hyphenated spellings as well.
func NormalizeExclusivity(s string) Exclusivity {
	return Exclusivity(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
}

func (e *Exclusivity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*e = NormalizeExclusivity(s)
	return nil
}

// Territory is either one region ("Worldwide") or a list of regions.
type Territory struct {
	Regions []string
	Multi   bool
}

func SingleTerritory(region string) Territory {
	return Territory{Regions: []string{region}}
}

func TerritoryList(regions ...string) Territory {
	return Territory{Regions: append([]string{}, regions...), Multi: true}
}

func (t Territory) String() string {
	return strings.Join(t.Regions, ", ")
}

func (t Territory) clone() Territory {
	if t.Regions == nil {
		return Territory{Multi: t.Multi}
	}
	return Territory{Regions: append([]string{}, t.Regions...), Multi: t.Multi}
}

func (t Territory) MarshalJSON() ([]byte, error) {
	if t.Multi {
		if t.Regions == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(t.Regions)
	}
	if len(t.Regions) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(t.Regions[0])
}

func (t *Territory) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*t = Territory{}
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var regions []string
		if err := json.Unmarshal(trimmed, &regions); err != nil {
			return err
		}
		if regions == nil {
			regions = []string{}
		}
		*t = Territory{Regions: regions, Multi: true}
		return nil
	default:
		var region string
		if err := json.Unmarshal(trimmed, &region); err != nil {
			return fmt.Errorf("territory must be a string or a list of strings: %w", err)
		}
		if region == "" {
			*t = Territory{}
			return nil
		}
		*t = SingleTerritory(region)
		return nil
	}
}

type Fee struct {
	Amount   float64 `json:"amount" validate:"gte=0"`
	Currency string  `json:"currency" validate:"required,iso4217"`
}

// LicenseTerms is the value object negotiated between the two parties.
type LicenseTerms struct {
	Purpose         string      `json:"purpose" validate:"max=2000"`
	TermMonths      int         `json:"term_months" validate:"gte=0"`
	Territory       Territory   `json:"territory"`
	Media           []string    `json:"media" validate:"required,dive,required"`
	Exclusivity     Exclusivity `json:"exclusivity" validate:"required,oneof=exclusive non_exclusive category_exclusive"`
	StartDate       *string     `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Deliverables    *string     `json:"deliverables,omitempty"`
	CreditRequired  *bool       `json:"credit_required,omitempty"`
	UsageNotes      *string     `json:"usage_notes,omitempty"`
	Fee             *Fee        `json:"fee,omitempty"`
	Sublicense      *bool       `json:"sublicense,omitempty"`
	DerivativeEdits []string    `json:"derivative_edits,omitempty" validate:"omitempty,dive,required"`
}

// Normalize fills the non-null defaults and canonical spellings.
func (t *LicenseTerms) Normalize() {
	if t.Media == nil {
		t.Media = []string{}
	}
	if t.Exclusivity != "" {
		t.Exclusivity = NormalizeExclusivity(string(t.Exclusivity))
	}
	if t.Fee != nil {
		t.Fee.Currency = strings.ToUpper(strings.TrimSpace(t.Fee.Currency))
	}
}

func (t LicenseTerms) Validate() error {
	return utils.CheckStruct(&t)
}

// Clone returns a deep copy.
func (t LicenseTerms) Clone() LicenseTerms {
	out := t
	out.Territory = t.Territory.clone()
	out.Media = cloneStrings(t.Media)
	out.DerivativeEdits = cloneStrings(t.DerivativeEdits)
	out.StartDate = clonePtr(t.StartDate)
	out.Deliverables = clonePtr(t.Deliverables)
	out.CreditRequired = clonePtr(t.CreditRequired)
	out.UsageNotes = clonePtr(t.UsageNotes)
	out.Fee = clonePtr(t.Fee)
	out.Sublicense = clonePtr(t.Sublicense)
	return out
}

// TermsPatch is a partial LicenseTerms. Absent keys are left untouched by
// Merge; keys sent as null clear the field.
type TermsPatch struct {
	Purpose         Optional[string]      `json:"purpose,omitzero"`
	TermMonths      Optional[int]         `json:"term_months,omitzero"`
	Territory       Optional[Territory]   `json:"territory,omitzero"`
	Media           Optional[[]string]    `json:"media,omitzero"`
	Exclusivity     Optional[Exclusivity] `json:"exclusivity,omitzero"`
	StartDate       Optional[string]      `json:"start_date,omitzero"`
	Deliverables    Optional[string]      `json:"deliverables,omitzero"`
	CreditRequired  Optional[bool]        `json:"credit_required,omitzero"`
	UsageNotes      Optional[string]      `json:"usage_notes,omitzero"`
	Fee             Optional[Fee]         `json:"fee,omitzero"`
	Sublicense      Optional[bool]        `json:"sublicense,omitzero"`
	DerivativeEdits Optional[[]string]    `json:"derivative_edits,omitzero"`
}

// Keys lists the keys present in the patch in declaration order.
func (p TermsPatch) Keys() []string {
	present := []struct {
		key string
		set bool
	}{
		{"purpose", p.Purpose.Set},
		{"term_months", p.TermMonths.Set},
		{"territory", p.Territory.Set},
		{"media", p.Media.Set},
		{"exclusivity", p.Exclusivity.Set},
		{"start_date", p.StartDate.Set},
		{"deliverables", p.Deliverables.Set},
		{"credit_required", p.CreditRequired.Set},
		{"usage_notes", p.UsageNotes.Set},
		{"fee", p.Fee.Set},
		{"sublicense", p.Sublicense.Set},
		{"derivative_edits", p.DerivativeEdits.Set},
	}

	var keys []string
	for _, f := range present {
		if f.set {
			keys = append(keys, f.key)
		}
	}
	return keys
}

func (p TermsPatch) IsEmpty() bool {
	return len(p.Keys()) == 0
}

// Validate rejects nulls on required fields and out-of-range values.
func (p TermsPatch) Validate() error {
	var fields []apperrors.FieldError
	required := []struct {
		key  string
		null bool
	}{
		{"purpose", p.Purpose.Null},
		{"term_months", p.TermMonths.Null},
		{"territory", p.Territory.Null},
		{"media", p.Media.Null},
		{"exclusivity", p.Exclusivity.Null},
	}
	for _, f := range required {
		if f.null {
			fields = append(fields, apperrors.FieldError{
				Field:   f.key,
				Tag:     "required",
				Message: f.key + " cannot be null",
			})
		}
	}
	if len(fields) > 0 {
		return apperrors.Validation("invalid terms patch", fields...)
	}

	merged := Merge(LicenseTerms{Media: []string{}, Exclusivity: ExclusivityNonExclusive}, p)
	merged.Normalize()
	return merged.Validate()
}

// Merge overwrites every key present in patch. It never mutates base.
func Merge(base LicenseTerms, patch TermsPatch) LicenseTerms {
	next := base.Clone()

	if patch.Purpose.Set {
		next.Purpose = patch.Purpose.Get()
	}
	if patch.TermMonths.Set {
		next.TermMonths = patch.TermMonths.Get()
	}
	if patch.Territory.Set {
		next.Territory = patch.Territory.Get().clone()
	}
	if patch.Media.Set {
		next.Media = cloneStrings(patch.Media.Get())
		if next.Media == nil {
			next.Media = []string{}
		}
	}
	if patch.Exclusivity.Set {
		next.Exclusivity = patch.Exclusivity.Get()
	}
	if patch.StartDate.Set {
		next.StartDate = optionalPtr(patch.StartDate)
	}
	if patch.Deliverables.Set {
		next.Deliverables = optionalPtr(patch.Deliverables)
	}
	if patch.CreditRequired.Set {
		next.CreditRequired = optionalPtr(patch.CreditRequired)
	}
	if patch.UsageNotes.Set {
		next.UsageNotes = optionalPtr(patch.UsageNotes)
	}
	if patch.Fee.Set {
		next.Fee = optionalPtr(patch.Fee)
	}
	if patch.Sublicense.Set {
		next.Sublicense = optionalPtr(patch.Sublicense)
	}
	if patch.DerivativeEdits.Set {
		if patch.DerivativeEdits.Null {
			next.DerivativeEdits = nil
		} else {
			next.DerivativeEdits = cloneStrings(patch.DerivativeEdits.Value)
			if next.DerivativeEdits == nil {
				next.DerivativeEdits = []string{}
			}
		}
	}

	return next
}

// TermsChange is one differing field between two versions of the terms.
type TermsChange struct {
	Key    string      `json:"key"`
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

type termField struct {
	key string
	get func(LicenseTerms) interface{}
}

var termFields = []termField{
	{"purpose", func(t LicenseTerms) interface{} { return t.Purpose }},
	{"term_months", func(t LicenseTerms) interface{} { return t.TermMonths }},
	{"territory", func(t LicenseTerms) interface{} { return t.Territory.clone() }},
	{"media", func(t LicenseTerms) interface{} {
		if t.Media == nil {
			return []string{}
		}
		return cloneStrings(t.Media)
	}},
	{"exclusivity", func(t LicenseTerms) interface{} { return t.Exclusivity }},
	{"start_date", func(t LicenseTerms) interface{} { return deref(t.StartDate) }},
	{"deliverables", func(t LicenseTerms) interface{} { return deref(t.Deliverables) }},
	{"credit_required", func(t LicenseTerms) interface{} { return deref(t.CreditRequired) }},
	{"usage_notes", func(t LicenseTerms) interface{} { return deref(t.UsageNotes) }},
	{"fee", func(t LicenseTerms) interface{} { return deref(t.Fee) }},
	{"sublicense", func(t LicenseTerms) interface{} { return deref(t.Sublicense) }},
	{"derivative_edits", func(t LicenseTerms) interface{} {
		if t.DerivativeEdits == nil {
			return nil
		}
		return cloneStrings(t.DerivativeEdits)
	}},
}

// Diff lists the fields whose canonical JSON differs between a and b.
func Diff(a, b LicenseTerms) []TermsChange {
	var changes []TermsChange
	for _, f := range termFields {
		before, after := f.get(a), f.get(b)
		if canonical(before) != canonical(after) {
			changes = append(changes, TermsChange{Key: f.key, Before: before, After: after})
		}
	}
	return changes
}

func canonical(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

func deref[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func optionalPtr[T any](o Optional[T]) *T {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
