// Package validate is the other half of C9: schema and bounds checks
// on inbound events and board objects, adapted from the teacher's
// InputValidator (internal/middleware/validation.go) — same UUID/
// length/pattern-check primitives and bluemonday sanitization, applied
// to this engine's coordinate/color/batch-size rules instead of HTTP
// form fields.
package validate

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/zamc/boardhub/internal/model"
)

var (
	uuidPattern  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

type Validator struct {
	policy *bluemonday.Policy
}

func New() *Validator {
	return &Validator{policy: bluemonday.StrictPolicy()}
}

func (v *Validator) SanitizeText(input string) string {
	return v.policy.Sanitize(input)
}

func ValidateUUID(id string) error {
	if !uuidPattern.MatchString(id) {
		return model.Validationf("invalid UUID: %q", id)
	}
	return nil
}

func ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if !colorPattern.MatchString(color) {
		return model.Validationf("invalid color: %q", color)
	}
	return nil
}

func ValidateCoordinate(name string, v float64) error {
	if v < model.MinCoordinate || v > model.MaxCoordinate {
		return model.Validationf("%s out of range: %v", name, v)
	}
	return nil
}

func ValidateDimension(name string, v float64) error {
	if v < model.MinDimension || v > model.MaxDimension {
		return model.Validationf("%s out of range: %v", name, v)
	}
	return nil
}

func ValidateTextLength(text string) error {
	if len(text) > model.MaxTextLength {
		return model.Validationf("text exceeds max length %d", model.MaxTextLength)
	}
	return nil
}

func ValidateTitleLength(title string) error {
	if len(title) > model.MaxTitleLength {
		return model.Validationf("title exceeds max length %d", model.MaxTitleLength)
	}
	return nil
}

func ValidateBatchSize(n int) error {
	if n > model.MaxBatchSize {
		return model.Validationf("batch of %d exceeds max %d", n, model.MaxBatchSize)
	}
	return nil
}

// ValidateObject checks the invariants from spec §3 that apply
// regardless of object type, plus type-specific bounds for the
// variants that carry geometry or free text.
func (v *Validator) ValidateObject(obj *model.BoardObject) error {
	if err := ValidateUUID(obj.ID); err != nil {
		return err
	}
	if err := ValidateCoordinate("x", obj.X); err != nil {
		return err
	}
	if err := ValidateCoordinate("y", obj.Y); err != nil {
		return err
	}

	switch obj.Type {
	case model.ObjectSticky:
		if obj.Text != nil {
			if err := ValidateTextLength(*obj.Text); err != nil {
				return err
			}
		}
		if obj.Color != nil {
			if err := ValidateColor(*obj.Color); err != nil {
				return err
			}
		}
		if obj.Width != nil {
			if err := ValidateDimension("width", *obj.Width); err != nil {
				return err
			}
		}
		if obj.Height != nil {
			if err := ValidateDimension("height", *obj.Height); err != nil {
				return err
			}
		}
	case model.ObjectText:
		if obj.Text != nil {
			if err := ValidateTextLength(*obj.Text); err != nil {
				return err
			}
		}
	case model.ObjectConnector, model.ObjectLine:
		if obj.X2 != nil {
			if err := ValidateCoordinate("x2", *obj.X2); err != nil {
				return err
			}
		}
		if obj.Y2 != nil {
			if err := ValidateCoordinate("y2", *obj.Y2); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidatePatch bounds-checks the subset of fields a Patch carries
// against the same coordinate/dimension/color rules ValidateObject
// enforces on create — object:update's LWW merge (model.ApplyPatch)
// otherwise bypasses every guarantee CreateObject gives.
func ValidatePatch(p model.Patch) error {
	for _, f := range []struct {
		key  string
		name string
	}{{"x", "x"}, {"y", "y"}, {"x2", "x2"}, {"y2", "y2"}} {
		raw, ok := p[f.key]
		if !ok {
			continue
		}
		v, ok := patchFloat(raw)
		if !ok {
			continue
		}
		if err := ValidateCoordinate(f.name, v); err != nil {
			return err
		}
	}
	for _, key := range []string{"width", "height"} {
		raw, ok := p[key]
		if !ok {
			continue
		}
		v, ok := patchFloat(raw)
		if !ok {
			continue
		}
		if err := ValidateDimension(key, v); err != nil {
			return err
		}
	}
	if raw, ok := p["color"]; ok {
		if s, ok := raw.(string); ok {
			if err := ValidateColor(s); err != nil {
				return err
			}
		}
	}
	if raw, ok := p["text"]; ok {
		if s, ok := raw.(string); ok {
			if err := ValidateTextLength(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func patchFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func errInvalidType(t model.ObjectType) error {
	return model.Validationf("unknown object type: %q", t)
}

func (v *Validator) ValidateObjectType(t model.ObjectType) error {
	switch t {
	case model.ObjectSticky, model.ObjectShape, model.ObjectFrame, model.ObjectConnector, model.ObjectText, model.ObjectLine:
		return nil
	default:
		return errInvalidType(t)
	}
}
