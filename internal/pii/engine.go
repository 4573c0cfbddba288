// Package pii implements pattern-based detection and reversible masking of
// personally identifiable information in transcript text.
package pii

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EntityType identifies a PII category.
type EntityType string

const (
	TypeSSN     EntityType = "ssn"
	TypePhone   EntityType = "phone"
	TypeEmail   EntityType = "email"
	TypeDate    EntityType = "date"
	TypeAddress EntityType = "address"
	TypeMRN     EntityType = "mrn"
	TypeAccount EntityType = "account"
	TypeName    EntityType = "name"
)

// Validation errors reported synchronously to the caller.
var (
	ErrInvalidMaskChar   = errors.New("pii: mask char must be exactly one character")
	ErrUnmaskUnsupported = errors.New("pii: unmask is not supported for preserve-length masking")
	ErrUnknownEntityType = errors.New("pii: unknown entity type")
)

// Options controls one masking pass.
type Options struct {
	// Types restricts detection to the listed categories. Nil enables all.
	Types []EntityType
	// PreserveLength replaces each match with MaskChar repeated to the
	// original length instead of a placeholder token. Unmasking is not
	// supported in this mode.
	PreserveLength bool
	// MaskChar is the filler character for PreserveLength mode.
	// Defaults to "*". Must be exactly one character.
	MaskChar string
}

// Entity records one masked span. Offsets are relative to the text as it
// existed immediately before the entity's category pass ran, not to the
// final masked text.
type Entity struct {
	Type        EntityType `json:"type"`
	Original    string     `json:"original"`
	Placeholder string     `json:"placeholder"`
	StartOffset int        `json:"startOffset"`
	EndOffset   int        `json:"endOffset"`
	DetectedAt  time.Time  `json:"detectedAt"`
}

// Metadata aggregates all entities from one masking pass.
//
// Unmasking substitutes by placeholder text, not by offset. If the source
// text happens to contain a literal string equal to a placeholder token
// the substitution is ambiguous; placeholders are chosen to make that
// unlikely, and the behavior is kept for compatibility with existing
// stored metadata.
type Metadata struct {
	PassID         string             `json:"passId"`
	Entities       []Entity           `json:"entities"`
	CountsByType   map[EntityType]int `json:"countsByType"`
	PreserveLength bool               `json:"preserveLength"`
}

// Detected reports whether the pass found any entities.
func (m Metadata) Detected() bool { return len(m.Entities) > 0 }

// Result is the output of one masking pass.
type Result struct {
	MaskedText string
	Metadata   Metadata
}

type category struct {
	entityType EntityType
	patterns   []*regexp.Regexp
}

// Engine detects and masks PII. Safe for concurrent use; all per-pass
// state lives in the returned Metadata.
type Engine struct {
	categories []category
}

// NewEngine builds an engine with the full category set. Categories run in
// a fixed order over the current (possibly already-modified) text, so an
// earlier category's placeholder is never re-matched by a later one.
func NewEngine() *Engine {
	return &Engine{categories: []category{
		{TypeSSN, compileAll(
			`\b\d{3}-\d{2}-\d{4}\b`,
		)},
		{TypePhone, compileAll(
			`\(\d{3}\)\s?\d{3}[-.]\d{4}`,
			`\b\d{3}[-.]\d{3}[-.]\d{4}\b`,
			`\+\d{1,2}[-.\s]\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`,
		)},
		{TypeEmail, compileAll(
			`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		)},
		{TypeDate, compileAll(
			`\b\d{4}-\d{2}-\d{2}\b`,
			`\b\d{1,2}/\d{1,2}/\d{2,4}\b`,
			`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`,
		)},
		{TypeAddress, compileAll(
			`\b\d+\s+(?:[A-Z][a-z]+\s+)+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way)\b`,
		)},
		{TypeMRN, compileAll(
			`(?i)\b(?:MRN|medical record(?:\s+number)?)[:#\s]+\d{5,10}\b`,
		)},
		{TypeAccount, compileAll(
			`\b\d{4}[- ]\d{4}[- ]\d{4}[- ]\d{4}\b`,
			`(?i)\b(?:account|acct)[:#\s]+\d{6,12}\b`,
		)},
		{TypeName, compileAll(
			`\b(?:Dr|Mr|Mrs|Ms|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`,
		)},
	}}
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Mask detects PII in text and replaces every match with either a
// placeholder token ("[EMAIL_1]") or, in PreserveLength mode, the mask
// character repeated to the match length.
func (e *Engine) Mask(text string, opts Options) (Result, error) {
	return e.mask(text, opts, false)
}

// mask runs the category passes. With zeroWidth set, matches are removed
// from the working text instead of substituted, so later categories scan
// text free of earlier matches and placeholder tokens.
func (e *Engine) mask(text string, opts Options, zeroWidth bool) (Result, error) {
	maskChar := opts.MaskChar
	if maskChar == "" {
		maskChar = "*"
	}
	if utf8.RuneCountInString(maskChar) != 1 {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMaskChar, opts.MaskChar)
	}
	enabled, err := enabledSet(opts.Types)
	if err != nil {
		return Result{}, err
	}

	meta := Metadata{
		PassID:         uuid.NewString(),
		CountsByType:   make(map[EntityType]int),
		PreserveLength: opts.PreserveLength,
	}
	now := time.Now().UTC()

	for _, cat := range e.categories {
		if enabled != nil && !enabled[cat.entityType] {
			continue
		}
		text = e.applyCategory(cat, text, opts.PreserveLength, zeroWidth, maskChar, now, &meta)
	}
	return Result{MaskedText: text, Metadata: meta}, nil
}

// applyCategory runs one category pass: all of the category's patterns are
// matched against a snapshot of the current text, overlaps are discarded
// in favor of the earliest (then longest) match, and the surviving spans
// are replaced in one rebuild. Recorded offsets refer to the snapshot.
func (e *Engine) applyCategory(cat category, text string, preserveLength, zeroWidth bool, maskChar string, now time.Time, meta *Metadata) string {
	var spans [][2]int
	for _, re := range cat.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})

	var b strings.Builder
	last := 0
	counter := 0
	for _, span := range spans {
		if span[0] < last {
			continue // overlaps a span already replaced in this pass
		}
		counter++
		original := text[span[0]:span[1]]
		var replacement string
		switch {
		case zeroWidth:
			replacement = ""
		case preserveLength:
			replacement = strings.Repeat(maskChar, utf8.RuneCountInString(original))
		default:
			replacement = fmt.Sprintf("[%s_%d]", strings.ToUpper(string(cat.entityType)), counter)
		}
		meta.Entities = append(meta.Entities, Entity{
			Type:        cat.entityType,
			Original:    original,
			Placeholder: replacement,
			StartOffset: span[0],
			EndOffset:   span[1],
			DetectedAt:  now,
		})
		meta.CountsByType[cat.entityType]++
		b.WriteString(text[last:span[0]])
		b.WriteString(replacement)
		last = span[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// Unmask restores the original text by substituting each recorded
// placeholder back to its original value. Order-independent because
// placeholders are unique labels within a pass.
func (e *Engine) Unmask(maskedText string, meta Metadata) (string, error) {
	if meta.PreserveLength {
		return "", ErrUnmaskUnsupported
	}
	for _, ent := range meta.Entities {
		if ent.Placeholder == "" {
			// Detect metadata carries no substitutable token.
			continue
		}
		maskedText = strings.Replace(maskedText, ent.Placeholder, ent.Original, 1)
	}
	return maskedText, nil
}

// Detect runs the category passes with zero-width replacement and
// returns only the metadata: matches are removed from the working text
// rather than substituted, so later categories never see a placeholder
// token. Offsets still refer to the text as each category's pass saw it.
func (e *Engine) Detect(text string) (Metadata, error) {
	res, err := e.mask(text, Options{}, true)
	if err != nil {
		return Metadata{}, err
	}
	return res.Metadata, nil
}

func enabledSet(types []EntityType) (map[EntityType]bool, error) {
	if types == nil {
		return nil, nil
	}
	known := map[EntityType]bool{
		TypeSSN: true, TypePhone: true, TypeEmail: true, TypeDate: true,
		TypeAddress: true, TypeMRN: true, TypeAccount: true, TypeName: true,
	}
	set := make(map[EntityType]bool, len(types))
	for _, t := range types {
		if !known[t] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
		}
		set[t] = true
	}
	return set, nil
}
