package model

// Patch is a last-write-wins field merge applied to an existing
// BoardObject by object:update. Keys mirror the
// BoardObject JSON tags; unknown keys are ignored rather than rejected
// so older/newer clients can coexist.
type Patch map[string]interface{}

// ApplyPatch merges p into o, field by field, overwriting whatever was
// there before (LWW — no attempt at reconciliation).
func (o *BoardObject) ApplyPatch(p Patch) {
	for key, raw := range p {
		switch key {
		case "x":
			if v, ok := toFloat(raw); ok {
				o.X = v
			}
		case "y":
			if v, ok := toFloat(raw); ok {
				o.Y = v
			}
		case "frame_id":
			o.FrameID = toStringPtr(raw)
		case "text":
			o.Text = toStringPtr(raw)
		case "color":
			o.Color = toStringPtr(raw)
		case "width":
			if v, ok := toFloat(raw); ok {
				o.Width = &v
			}
		case "height":
			if v, ok := toFloat(raw); ok {
				o.Height = &v
			}
		case "from_object_id":
			o.FromObjectID = toStringPtr(raw)
		case "to_object_id":
			o.ToObjectID = toStringPtr(raw)
		case "from_anchor":
			o.FromAnchor = toStringPtr(raw)
		case "to_anchor":
			o.ToAnchor = toStringPtr(raw)
		case "style":
			o.Style = toStringPtr(raw)
		case "x2":
			if v, ok := toFloat(raw); ok {
				o.X2 = &v
			}
		case "y2":
			if v, ok := toFloat(raw); ok {
				o.Y2 = &v
			}
		case "endpoint_style":
			o.EndpointStyle = toStringPtr(raw)
		case "stroke_pattern":
			o.StrokePattern = toStringPtr(raw)
		case "stroke_weight":
			if v, ok := toFloat(raw); ok {
				o.StrokeWeight = &v
			}
		case "z_index":
			if v, ok := toFloat(raw); ok {
				iv := int(v)
				o.ZIndex = &iv
			}
		}
	}
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func toStringPtr(raw interface{}) *string {
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		return &s
	}
	return nil
}
