package flowcontrol

import (
	"fmt"
	"strings"

	"github.com/c360/visionflow/variant"
)

// TagRow identifies a Row payload
const TagRow variant.Tag = "flowcontrol.row"

// Row is one completed group of a GroupCapturer
type Row struct {
	Group  int
	Values []variant.Variant
}

// Equal compares rows element-wise
func (r *Row) Equal(other any) bool {
	o, ok := other.(*Row)
	if !ok || o.Group != r.Group || len(o.Values) != len(r.Values) {
		return false
	}
	for i := range r.Values {
		if !variant.Equal(r.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

func (r *Row) String() string {
	parts := make([]string, 0, len(r.Values)+1)
	parts = append(parts, fmt.Sprint(r.Group))
	for _, v := range r.Values {
		parts = append(parts, v.String())
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// AsRow extracts a Row from a variant
func AsRow(v variant.Variant) (*Row, bool) {
	if v.Tag() != TagRow {
		return nil, false
	}
	return variant.As[*Row](v)
}

// Capture is one emission of an ObjectCapturer
type Capture struct {
	// Sync is invalid when the sync input is unconnected
	Sync    variant.Variant
	Objects variant.Variant
}
