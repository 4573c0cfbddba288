package pii

import (
	"errors"
	"strings"
	"testing"
)

func TestMask_Email(t *testing.T) {
	e := NewEngine()

	res, err := e.Mask("Contact John at john@example.com", Options{Types: []EntityType{TypeEmail}})
	if err != nil {
		t.Fatalf("mask failed: %v", err)
	}

	if got := strings.Count(res.MaskedText, "[EMAIL_1]"); got != 1 {
		t.Errorf("expected exactly one [EMAIL_1] token, got %d in %q", got, res.MaskedText)
	}
	if strings.Contains(res.MaskedText, "john@example.com") {
		t.Errorf("original email leaked into masked text: %q", res.MaskedText)
	}
	if res.Metadata.CountsByType[TypeEmail] != 1 {
		t.Errorf("expected email count 1, got %d", res.Metadata.CountsByType[TypeEmail])
	}
}

func TestMask_PerCategoryCounters(t *testing.T) {
	e := NewEngine()

	res, err := e.Mask("Email a@b.com then c@d.org, call 555-123-4567", Options{})
	if err != nil {
		t.Fatalf("mask failed: %v", err)
	}

	for _, want := range []string{"[EMAIL_1]", "[EMAIL_2]", "[PHONE_1]"} {
		if !strings.Contains(res.MaskedText, want) {
			t.Errorf("masked text %q missing token %s", res.MaskedText, want)
		}
	}
	if res.Metadata.CountsByType[TypeEmail] != 2 {
		t.Errorf("expected 2 emails, got %d", res.Metadata.CountsByType[TypeEmail])
	}
	if res.Metadata.CountsByType[TypePhone] != 1 {
		t.Errorf("expected 1 phone, got %d", res.Metadata.CountsByType[TypePhone])
	}
}

func TestMaskUnmask_Roundtrip(t *testing.T) {
	e := NewEngine()

	texts := []string{
		"Patient Dr. Smith can be reached at dr.smith@clinic.org or 416-555-0133.",
		"MRN: 8675309, seen on 2024-03-15 at 12 Main Street.",
		"SSN 123-45-6789, card 4111 1111 1111 1111, account: 99887766.",
		"No identifiers in this sentence at all.",
	}

	for _, text := range texts {
		res, err := e.Mask(text, Options{})
		if err != nil {
			t.Fatalf("mask(%q) failed: %v", text, err)
		}
		got, err := e.Unmask(res.MaskedText, res.Metadata)
		if err != nil {
			t.Fatalf("unmask(%q) failed: %v", res.MaskedText, err)
		}
		if got != text {
			t.Errorf("roundtrip mismatch:\n  in:  %q\n  out: %q", text, got)
		}
	}
}

func TestMask_PreserveLength(t *testing.T) {
	e := NewEngine()

	res, err := e.Mask("mail me: jo@x.io", Options{
		Types:          []EntityType{TypeEmail},
		PreserveLength: true,
		MaskChar:       "#",
	})
	if err != nil {
		t.Fatalf("mask failed: %v", err)
	}

	want := "mail me: " + strings.Repeat("#", len("jo@x.io"))
	if res.MaskedText != want {
		t.Errorf("expected %q, got %q", want, res.MaskedText)
	}
	if len(res.MaskedText) != len("mail me: jo@x.io") {
		t.Errorf("preserve-length mode changed text length: %d", len(res.MaskedText))
	}

	if _, err := e.Unmask(res.MaskedText, res.Metadata); !errors.Is(err, ErrUnmaskUnsupported) {
		t.Errorf("expected ErrUnmaskUnsupported, got %v", err)
	}
}

func TestMask_InvalidMaskChar(t *testing.T) {
	e := NewEngine()

	for _, bad := range []string{"##", "abc"} {
		_, err := e.Mask("text", Options{PreserveLength: true, MaskChar: bad})
		if !errors.Is(err, ErrInvalidMaskChar) {
			t.Errorf("maskChar %q: expected ErrInvalidMaskChar, got %v", bad, err)
		}
	}

	// Empty defaults to "*" and is not an error.
	if _, err := e.Mask("text", Options{PreserveLength: true}); err != nil {
		t.Errorf("empty maskChar should default, got %v", err)
	}
}

func TestMask_UnknownType(t *testing.T) {
	e := NewEngine()
	_, err := e.Mask("text", Options{Types: []EntityType{"dna"}})
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("expected ErrUnknownEntityType, got %v", err)
	}
}

func TestMask_OffsetsReferToPrePassText(t *testing.T) {
	e := NewEngine()

	text := "write to a@b.com today"
	res, err := e.Mask(text, Options{Types: []EntityType{TypeEmail}})
	if err != nil {
		t.Fatalf("mask failed: %v", err)
	}
	if len(res.Metadata.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(res.Metadata.Entities))
	}
	ent := res.Metadata.Entities[0]
	if text[ent.StartOffset:ent.EndOffset] != ent.Original {
		t.Errorf("offsets %d:%d do not cover %q in pre-pass text", ent.StartOffset, ent.EndOffset, ent.Original)
	}
}

func TestDetect_ZeroWidthOffsets(t *testing.T) {
	e := NewEngine()

	// The email pass runs before the name pass. With zero-width
	// replacement the email is removed, so the name offsets refer to
	// " Dr. Smith" rather than to text holding an email placeholder.
	meta, err := e.Detect("a@b.com Dr. Smith")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	var name Entity
	for _, ent := range meta.Entities {
		if ent.Placeholder != "" {
			t.Errorf("detect must not record placeholder tokens, got %q", ent.Placeholder)
		}
		if ent.Type == TypeName {
			name = ent
		}
	}
	if name.Original != "Dr. Smith" {
		t.Fatalf("expected name entity for Dr. Smith, got %+v", meta.Entities)
	}
	if name.StartOffset != 1 {
		t.Errorf("expected name offset 1 in email-stripped text, got %d", name.StartOffset)
	}
}

func TestDetect(t *testing.T) {
	e := NewEngine()

	meta, err := e.Detect("call 555-123-4567 re: MRN 1234567")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if !meta.Detected() {
		t.Fatal("expected detection")
	}
	if meta.CountsByType[TypePhone] != 1 || meta.CountsByType[TypeMRN] != 1 {
		t.Errorf("unexpected counts: %v", meta.CountsByType)
	}
}
