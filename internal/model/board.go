package model

import "time"

// Board tier caps; MaxObjectsPerBoard is overridden at runtime from
// MAX_OBJECTS_PER_BOARD but this is the compiled-in default.
const (
	DefaultMaxObjectsPerBoard = 2000
	MaxBatchSize              = 50

	MinCoordinate = -1_000_000.0
	MaxCoordinate = 1_000_000.0
	MinDimension  = 50.0
	MaxDimension  = 2_000.0

	MaxTextLength  = 10_000
	MaxTitleLength = 255
)

// Board is the durable row. Objects are stored as an opaque JSON blob
// at the repository layer and decoded into []BoardObject whenever a
// row is read.
type Board struct {
	ID                 string     `json:"id" db:"id"`
	OwnerID            string     `json:"owner_id" db:"owner_id"`
	Title              string     `json:"title" db:"title"`
	Slot               int        `json:"slot" db:"slot"`
	Version            int        `json:"version" db:"version"`
	IsDeleted          bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	LastAccessedAt     time.Time  `json:"last_accessed_at" db:"last_accessed_at"`
	Thumbnail          []byte     `json:"thumbnail,omitempty" db:"thumbnail"`
	ThumbnailVersion   int        `json:"thumbnail_version" db:"thumbnail_version"`
	ThumbnailUpdatedAt *time.Time `json:"thumbnail_updated_at,omitempty" db:"thumbnail_updated_at"`
	Objects            []BoardObject `json:"objects" db:"-"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// ObjectType is the BoardObject discriminator. Per-variant logic
// dispatches on this tag via switch, never via subclassing.
type ObjectType string

const (
	ObjectSticky    ObjectType = "sticky"
	ObjectShape     ObjectType = "shape"
	ObjectFrame     ObjectType = "frame"
	ObjectConnector ObjectType = "connector"
	ObjectText      ObjectType = "text"
	ObjectLine      ObjectType = "line"
)

// CreatedVia records whether a manual user action or the AI pipeline
// (out of scope here, interface only) produced the object.
type CreatedVia string

const (
	CreatedViaManual CreatedVia = "manual"
	CreatedViaAI     CreatedVia = "ai"
)

// BoardObject is the tagged sum over the six placeable kinds. Common
// fields are always populated; variant-specific fields are pointers so
// a field absent for a given Type marshals as omitted JSON rather than
// a misleading zero value.
type BoardObject struct {
	ID      string     `json:"id"`
	Type    ObjectType `json:"type"`
	X       float64    `json:"x"`
	Y       float64    `json:"y"`
	FrameID *string    `json:"frame_id,omitempty"`

	CreatedBy    string      `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	LastEditedBy string      `json:"last_edited_by,omitempty"`
	ZIndex       *int        `json:"z_index,omitempty"`
	CreatedVia   *CreatedVia `json:"created_via,omitempty"`

	// sticky
	Text   *string  `json:"text,omitempty"`
	Color  *string  `json:"color,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	// connector
	FromObjectID *string `json:"from_object_id,omitempty"`
	ToObjectID   *string `json:"to_object_id,omitempty"`
	FromAnchor   *string `json:"from_anchor,omitempty"`
	ToAnchor     *string `json:"to_anchor,omitempty"`
	Style        *string `json:"style,omitempty"`

	// line / connector shared tail coordinate
	X2 *float64 `json:"x2,omitempty"`
	Y2 *float64 `json:"y2,omitempty"`

	// line
	EndpointStyle *string `json:"endpoint_style,omitempty"`
	StrokePattern *string `json:"stroke_pattern,omitempty"`
	StrokeWeight  *float64 `json:"stroke_weight,omitempty"`
}

// IsConnectorLike reports whether the object carries the weak by-ID
// references that must be cleared when a referenced object is deleted.
func (o *BoardObject) IsConnectorLike() bool {
	return o.Type == ObjectConnector
}

// DetachFrom clears any reference this object holds to the given
// object ID, reporting whether it mutated anything (so the caller
// knows whether to broadcast an object:updated for it).
func (o *BoardObject) DetachFrom(id string) bool {
	changed := false
	if o.FrameID != nil && *o.FrameID == id {
		o.FrameID = nil
		changed = true
	}
	if o.FromObjectID != nil && *o.FromObjectID == id {
		empty := ""
		o.FromObjectID = &empty
		changed = true
	}
	if o.ToObjectID != nil && *o.ToObjectID == id {
		empty := ""
		o.ToObjectID = &empty
		changed = true
	}
	return changed
}

// Clone returns a deep-enough copy for safe inclusion in a broadcast
// snapshot taken while the hub still owns the original.
func (o BoardObject) Clone() BoardObject {
	clone := o
	if o.FrameID != nil {
		v := *o.FrameID
		clone.FrameID = &v
	}
	if o.Text != nil {
		v := *o.Text
		clone.Text = &v
	}
	if o.Color != nil {
		v := *o.Color
		clone.Color = &v
	}
	if o.Width != nil {
		v := *o.Width
		clone.Width = &v
	}
	if o.Height != nil {
		v := *o.Height
		clone.Height = &v
	}
	if o.FromObjectID != nil {
		v := *o.FromObjectID
		clone.FromObjectID = &v
	}
	if o.ToObjectID != nil {
		v := *o.ToObjectID
		clone.ToObjectID = &v
	}
	if o.FromAnchor != nil {
		v := *o.FromAnchor
		clone.FromAnchor = &v
	}
	if o.ToAnchor != nil {
		v := *o.ToAnchor
		clone.ToAnchor = &v
	}
	if o.Style != nil {
		v := *o.Style
		clone.Style = &v
	}
	if o.X2 != nil {
		v := *o.X2
		clone.X2 = &v
	}
	if o.Y2 != nil {
		v := *o.Y2
		clone.Y2 = &v
	}
	if o.EndpointStyle != nil {
		v := *o.EndpointStyle
		clone.EndpointStyle = &v
	}
	if o.StrokePattern != nil {
		v := *o.StrokePattern
		clone.StrokePattern = &v
	}
	if o.StrokeWeight != nil {
		v := *o.StrokeWeight
		clone.StrokeWeight = &v
	}
	if o.ZIndex != nil {
		v := *o.ZIndex
		clone.ZIndex = &v
	}
	if o.CreatedVia != nil {
		v := *o.CreatedVia
		clone.CreatedVia = &v
	}
	return clone
}
