package tracking

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/pose"
)

func TestDetectionRecord_JSONSuccess(t *testing.T) {
	r := DetectionRecord{
		Timestamp:   1700000000.5,
		Success:     true,
		Translation: pose.Vec3{0.1, 0, -0.3},
		Orientation: pose.Basis{
			Right:   pose.Vec3{1, 0, 0},
			Up:      pose.Vec3{0, 1, 0},
			Forward: pose.Vec3{0, 0, 1},
		},
		MarkerID: 4,
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": 1700000000.5,
		"success": true,
		"translation_x": 0.1, "translation_y": 0, "translation_z": -0.3,
		"rotation_right_x": 1, "rotation_right_y": 0, "rotation_right_z": 0,
		"rotation_up_x": 0, "rotation_up_y": 1, "rotation_up_z": 0,
		"rotation_forward_x": 0, "rotation_forward_y": 0, "rotation_forward_z": 1
	}`, string(data))

	var back DetectionRecord
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(r, back, cmpopts.IgnoreFields(DetectionRecord{}, "MarkerID")); diff != "" {
		t.Errorf("decoded record mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectionRecord_JSONFailureOmitsPose(t *testing.T) {
	data, err := json.Marshal(Failure(12.25))
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp": 12.25, "success": false}`, string(data))
}

func TestDetectionRecord_UnmarshalIgnoresPoseOnFailure(t *testing.T) {
	var r DetectionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp": 3, "success": false, "translation_x": 9}`), &r))
	assert.Equal(t, Failure(3), r)
}
