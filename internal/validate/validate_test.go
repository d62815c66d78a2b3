package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zamc/boardhub/internal/model"
)

func TestValidateUUID(t *testing.T) {
	t.Run("accepts well-formed v4 UUID", func(t *testing.T) {
		assert.NoError(t, ValidateUUID("3fa85f64-5717-4562-b3fc-2c963f66afa6"))
	})

	t.Run("rejects malformed UUID", func(t *testing.T) {
		err := ValidateUUID("not-a-uuid")
		assert.Error(t, err)
		assert.Equal(t, model.KindValidation, model.KindOf(err))
	})
}

func TestValidateColor(t *testing.T) {
	assert.NoError(t, ValidateColor("#FF00AA"))
	assert.NoError(t, ValidateColor(""), "empty color is treated as absent")
	assert.Error(t, ValidateColor("red"))
	assert.Error(t, ValidateColor("#ZZZZZZ"))
}

func TestValidateCoordinate(t *testing.T) {
	assert.NoError(t, ValidateCoordinate("x", 0))
	assert.NoError(t, ValidateCoordinate("x", model.MinCoordinate))
	assert.NoError(t, ValidateCoordinate("x", model.MaxCoordinate))
	assert.Error(t, ValidateCoordinate("x", model.MinCoordinate-1))
	assert.Error(t, ValidateCoordinate("x", model.MaxCoordinate+1))
}

func TestValidateDimension(t *testing.T) {
	assert.NoError(t, ValidateDimension("width", model.MinDimension))
	assert.Error(t, ValidateDimension("width", model.MinDimension-1))
	assert.Error(t, ValidateDimension("width", model.MaxDimension+1))
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, ValidateBatchSize(model.MaxBatchSize))
	assert.Error(t, ValidateBatchSize(model.MaxBatchSize+1))
}

func TestValidateObject_Sticky(t *testing.T) {
	v := New()
	text := "hello"
	color := "#112233"
	width := 100.0
	height := 100.0
	obj := &model.BoardObject{
		ID:     "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		Type:   model.ObjectSticky,
		X:      10, Y: 10,
		Text:   &text,
		Color:  &color,
		Width:  &width,
		Height: &height,
	}

	assert.NoError(t, v.ValidateObject(obj))
}

func TestValidateObject_RejectsBadColorOnSticky(t *testing.T) {
	v := New()
	color := "not-a-color"
	obj := &model.BoardObject{
		ID:    "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		Type:  model.ObjectSticky,
		Color: &color,
	}

	err := v.ValidateObject(obj)
	assert.Error(t, err)
}

func TestValidateObject_ConnectorChecksTailCoordinate(t *testing.T) {
	v := New()
	badX2 := model.MaxCoordinate + 100
	obj := &model.BoardObject{
		ID:   "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		Type: model.ObjectConnector,
		X2:   &badX2,
	}

	assert.Error(t, v.ValidateObject(obj))
}

func TestValidateObjectType(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateObjectType(model.ObjectFrame))
	assert.Error(t, v.ValidateObjectType(model.ObjectType("unknown")))
}

func TestValidatePatch_AcceptsInBoundsFields(t *testing.T) {
	err := ValidatePatch(model.Patch{"x": 10.0, "y": -5.0, "width": 50.0, "color": "#AABBCC"})
	assert.NoError(t, err)
}

func TestValidatePatch_RejectsOutOfRangeCoordinate(t *testing.T) {
	err := ValidatePatch(model.Patch{"x": model.MaxCoordinate + 1})
	assert.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestValidatePatch_RejectsOutOfRangeTailCoordinate(t *testing.T) {
	err := ValidatePatch(model.Patch{"x2": model.MaxCoordinate + 1})
	assert.Error(t, err)
}

func TestValidatePatch_RejectsOutOfRangeDimension(t *testing.T) {
	err := ValidatePatch(model.Patch{"height": model.MaxDimension + 1})
	assert.Error(t, err)
}

func TestValidatePatch_RejectsMalformedColor(t *testing.T) {
	err := ValidatePatch(model.Patch{"color": "not-a-color"})
	assert.Error(t, err)
}

func TestValidatePatch_IgnoresUnknownOrWrongTypedFields(t *testing.T) {
	err := ValidatePatch(model.Patch{"frame_id": "some-id", "x": "not-a-number"})
	assert.NoError(t, err, "non-numeric x is ignored here the same way ApplyPatch ignores it")
}

func TestSanitizeText_StripsMarkup(t *testing.T) {
	v := New()
	out := v.SanitizeText(`<script>alert(1)</script>hello`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "hello")
}
