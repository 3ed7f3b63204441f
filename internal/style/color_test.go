package style

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	testCases := []struct {
		in        string
		want      color.NRGBA
		expectErr bool
	}{
		{in: "#fff", want: color.NRGBA{255, 255, 255, 255}},
		{in: "#b5d0d0", want: color.NRGBA{0xb5, 0xd0, 0xd0, 255}},
		{in: "#B5D0D080", want: color.NRGBA{0xb5, 0xd0, 0xd0, 0x80}},
		{in: "rgb(10, 20, 30)", want: color.NRGBA{10, 20, 30, 255}},
		{in: "rgba(10,20,30,0.5)", want: color.NRGBA{10, 20, 30, 128}},
		{in: "rgb(100%,0%,50%)", want: color.NRGBA{255, 0, 128, 255}},
		{in: "steelblue", want: color.NRGBA{70, 130, 180, 255}},
		{in: "transparent", want: color.NRGBA{}},
		{in: "", expectErr: true},
		{in: "#12345", expectErr: true},
		{in: "#zzzzzz", expectErr: true},
		{in: "rgb(1,2)", expectErr: true},
		{in: "rgba(1,2,3,4)", expectErr: true},
		{in: "rgb(300,0,0)", expectErr: true},
		{in: "blurple", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseColor(tc.in)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
