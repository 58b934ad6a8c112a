package articles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/model"
)

// ErrInvalidSnapshot wraps every rejection of an imported snapshot.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ValidationError describes the first problem found in an article or a snapshot.
type ValidationError struct {
	// Index is the position of the offending element in a snapshot, or -1.
	Index  int
	Field  string
	Reason string

	kind error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.kind.Error())
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": element %d", e.Index)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

func snapshotError(index int, field, reason string) error {
	return &ValidationError{Index: index, Field: field, Reason: reason, kind: ErrInvalidSnapshot}
}

// ExportSnapshot returns the collection as an indented JSON array. Empty summaries are omitted.
func (s *Store) ExportSnapshot(ctx context.Context) (string, error) {
	data, err := json.MarshalIndent(s.List(ctx), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

// ImportSnapshot replaces the whole collection with the decoded snapshot. Nothing is written when
// the snapshot is rejected.
func (s *Store) ImportSnapshot(ctx context.Context, data string) error {
	list, err := DecodeSnapshot([]byte(data))
	if err != nil {
		s.log.Warn("snapshot rejected", zap.Error(err))
		return err
	}

	if err := s.write(ctx, func() ([]model.Article, error) { return list, nil }); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	s.log.Info("snapshot imported", zap.Int("articles", len(list)))
	return nil
}

// articleFields are the string fields of an article in snapshot order.
var articleFields = []string{"id", "title", "content", "summary", "author", "date", "category", "imageUrl"}

// DecodeSnapshot parses untrusted snapshot JSON. The top level must be an array of objects; every
// element needs a non-empty id and title, every known field must be a string (null counts as absent),
// dates must be YYYY-MM-DD and ids must be unique. Summaries outside the film category are dropped.
func DecodeSnapshot(data []byte) ([]model.Article, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, snapshotError(-1, "", "empty input")
	}
	if trimmed[0] != '[' {
		if json.Valid(trimmed) {
			return nil, snapshotError(-1, "", "not an array")
		}
		return nil, snapshotError(-1, "", "malformed JSON")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, snapshotError(-1, "", "malformed JSON: "+err.Error())
	}

	validate := newValidator()
	list := make([]model.Article, 0, len(elems))
	seen := make(map[string]int, len(elems))

	for i, raw := range elems {
		a, err := decodeArticle(i, raw)
		if err != nil {
			return nil, err
		}

		if err := validate.Struct(a); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				return nil, snapshotError(i, fieldErrs[0].Field(), reason(fieldErrs[0]))
			}
			return nil, snapshotError(i, "", err.Error())
		}

		if first, dup := seen[a.ID]; dup {
			return nil, snapshotError(i, "id", fmt.Sprintf("duplicates element %d", first))
		}
		seen[a.ID] = i

		if !a.IsFilm() {
			a.Summary = ""
		}
		list = append(list, a)
	}

	return list, nil
}

func decodeArticle(index int, raw json.RawMessage) (model.Article, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return model.Article{}, snapshotError(index, "", "not an object")
	}

	values := make(map[string]string, len(articleFields))
	for _, name := range articleFields {
		v, ok := fields[name]
		if !ok || string(bytes.TrimSpace(v)) == "null" {
			continue
		}

		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			return model.Article{}, snapshotError(index, name, "must be a string")
		}
		values[name] = str
	}

	for _, name := range []string{"id", "title"} {
		if strings.TrimSpace(values[name]) == "" {
			return model.Article{}, snapshotError(index, name, "is required")
		}
	}

	return model.Article{
		ID:       values["id"],
		Title:    values["title"],
		Content:  values["content"],
		Summary:  values["summary"],
		Author:   values["author"],
		Date:     values["date"],
		Category: values["category"],
		ImageURL: values["imageUrl"],
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// id and title must carry more than whitespace, on save and on import alike
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "datetime":
		return "must be a YYYY-MM-DD date"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
