package genflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validParams() CreateParams {
	return CreateParams{Model: ModelBase, Prompt: "a cat on a skateboard", Orientation: Portrait, Size: SizeSmall, Duration: 10}
}

func TestCreateParams_Validate_Table(t *testing.T) {
	cases := []struct {
		model    Model
		duration int
		size     Size
		ok       bool
	}{
		{ModelBase, 10, SizeSmall, true},
		{ModelBase, 15, SizeLarge, true},
		{ModelBase, 25, SizeSmall, false},
		{ModelPro, 15, SizeLarge, true},
		{ModelPro, 25, SizeLarge, true},
		{ModelPro, 10, SizeLarge, false},
		{ModelPro, 15, SizeSmall, false},
	}
	for _, tc := range cases {
		p := validParams()
		p.Model, p.Duration, p.Size = tc.model, tc.duration, tc.size
		err := p.Validate()
		if tc.ok {
			require.NoError(t, err, "%s/%d/%s", tc.model, tc.duration, tc.size)
		} else {
			require.ErrorIs(t, err, ErrInvalidParams, "%s/%d/%s", tc.model, tc.duration, tc.size)
		}
	}
}

func TestCreateParams_Validate_Fields(t *testing.T) {
	p := validParams()
	p.Prompt = "   "
	require.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = validParams()
	p.Orientation = "square"
	require.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = validParams()
	p.Model = "sora-3"
	require.ErrorIs(t, p.Validate(), ErrInvalidParams)
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("Sora-2-Pro")
	require.NoError(t, err)
	require.Equal(t, ModelPro, m)
	m, err = ParseModel("base")
	require.NoError(t, err)
	require.Equal(t, ModelBase, m)
	_, err = ParseModel("x")
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestModel_Defaults(t *testing.T) {
	require.Equal(t, SizeLarge, ModelPro.DefaultSize())
	require.Equal(t, SizeSmall, ModelBase.DefaultSize())
	require.Equal(t, []int{15, 25}, ModelPro.AllowedDurations())
	require.Equal(t, []Size{SizeSmall, SizeLarge}, ModelBase.AllowedSizes())
}

func TestTempID(t *testing.T) {
	a, b := NewTempID(0), NewTempID(0)
	require.NotEqual(t, a, b)
	require.True(t, IsTempID(a))
	require.False(t, IsTempID("video_123"))
}
