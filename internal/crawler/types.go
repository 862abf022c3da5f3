package crawler

import (
	"sort"
	"time"
)

// FieldType is the declared type of a content-type field.
type FieldType string

// Field types declared by the content store.
const (
	FieldSymbol   FieldType = "Symbol"
	FieldText     FieldType = "Text"
	FieldRichText FieldType = "RichText"
	FieldInteger  FieldType = "Integer"
	FieldNumber   FieldType = "Number"
	FieldDate     FieldType = "Date"
	FieldBoolean  FieldType = "Boolean"
	FieldLocation FieldType = "Location"
	FieldObject   FieldType = "Object"
	FieldLink     FieldType = "Link"
	FieldArray    FieldType = "Array"
)

// LinkType distinguishes links to entries from links to binary assets.
type LinkType string

// Link targets.
const (
	LinkEntry LinkType = "Entry"
	LinkAsset LinkType = "Asset"
)

// Validation is the subset of field validations the crawler understands.
type Validation struct {
	LinkContentType []string `json:"linkContentType,omitempty"`
}

// Items describes the element type of an Array field.
type Items struct {
	Type        FieldType    `json:"type"`
	LinkType    LinkType     `json:"linkType,omitempty"`
	Validations []Validation `json:"validations,omitempty"`
}

// Field is one declared field of a content type.
type Field struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        FieldType    `json:"type"`
	LinkType    LinkType     `json:"linkType,omitempty"`
	Localized   bool         `json:"localized"`
	Disabled    bool         `json:"disabled"`
	Omitted     bool         `json:"omitted"`
	Items       *Items       `json:"items,omitempty"`
	Validations []Validation `json:"validations,omitempty"`
}

// IsLink reports whether the field holds a single link.
func (f Field) IsLink() bool {
	return f.Type == FieldLink
}

// IsLinkList reports whether the field holds an array of links.
func (f Field) IsLinkList() bool {
	return f.Type == FieldArray && f.Items != nil && f.Items.Type == FieldLink
}

// TargetLinkType returns the link sub-type for Link and Array-of-Link fields.
func (f Field) TargetLinkType() LinkType {
	switch {
	case f.IsLink():
		return f.LinkType
	case f.IsLinkList():
		return f.Items.LinkType
	default:
		return ""
	}
}

// ValueType returns the scalar type carried by the field, looking through arrays.
func (f Field) ValueType() FieldType {
	if f.Type == FieldArray && f.Items != nil {
		return f.Items.Type
	}
	return f.Type
}

// LinkContentTypes returns every content-type id allowed by the link validations.
func (f Field) LinkContentTypes() []string {
	validations := f.Validations
	if f.IsLinkList() {
		validations = f.Items.Validations
	}
	var out []string
	for _, v := range validations {
		out = append(out, v.LinkContentType...)
	}
	return out
}

// ContentType is an immutable content-type schema.
type ContentType struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	DisplayField string  `json:"displayField,omitempty"`
	Fields       []Field `json:"fields"`
}

// Link is an unresolved reference to another entry or asset.
type Link struct {
	LinkType LinkType
	ID       string
}

// LocalizedValue maps locale codes to raw values.
type LocalizedValue map[string]any

// Resolve returns the value for the preferred locale, falling back to the
// lexicographically first locale present. ok is false when the map is empty.
func (v LocalizedValue) Resolve(preferred string) (any, bool) {
	if len(v) == 0 {
		return nil, false
	}
	if val, ok := v[preferred]; ok {
		return val, true
	}
	locales := v.Locales()
	return v[locales[0]], true
}

// Locales returns the sorted locale keys.
func (v LocalizedValue) Locales() []string {
	out := make([]string, 0, len(v))
	for locale := range v {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Entry is one record of a content type. Field values are keyed by field id
// and then by locale. Links one level deep are expanded to *Entry or *Asset.
type Entry struct {
	ID            string
	ContentTypeID string
	Fields        map[string]LocalizedValue
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Revision      int
}

// Asset is a binary asset. Its fields (title, description, file) are kept raw.
type Asset struct {
	ID     string
	Fields map[string]LocalizedValue
}

// EntryPage is one page of entries returned by an EntryProvider.
type EntryPage struct {
	Items []*Entry
	Skip  int
	Limit int
	Total int
}

// Document is the flat projection of an entry handed to the index writer.
type Document map[string]any

// IndexedDocument pairs a document with its id.
type IndexedDocument struct {
	ID   string
	Body Document
}

// BulkFailure describes one rejected item of a bulk request.
type BulkFailure struct {
	ID     string
	Status int
	Reason string
}

// BulkResult summarizes a bulk upsert.
type BulkResult struct {
	Succeeded int
	Failures  []BulkFailure
}

// AppendIfAbsent is the partial update used for back-reference tags: Value is
// appended to the array stored under Field unless it is already present.
type AppendIfAbsent struct {
	Field string
	Value string
}

// UpdateOutcome is the result of a partial update.
type UpdateOutcome string

// Partial update outcomes.
const (
	UpdateApplied       UpdateOutcome = "applied"
	UpdateUnchanged     UpdateOutcome = "unchanged"
	UpdateTargetMissing UpdateOutcome = "target_missing"
)
