package utils_test

import (
	"testing"

	"resume-store-go/internal/utils"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{-5, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{50 * 1024 * 1024, "50 MB"},
		{1234567, "1.18 MB"},
		{1 << 30, "1 GB"},
		{5 << 40, "5120 GB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, utils.FormatSize(c.in), "FormatSize(%d)", c.in)
	}
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, utils.StringPtr(""))
	p := utils.StringPtr("app_1")
	if assert.NotNil(t, p) {
		assert.Equal(t, "app_1", *p)
	}
	assert.Equal(t, "", utils.StringValue(nil))
	assert.Equal(t, "app_1", utils.StringValue(p))
}

func TestMapJSONRoundTrip(t *testing.T) {
	in := map[string]string{"fileExtension": "pdf"}
	assert.Equal(t, in, utils.JSONToMap(utils.MapToJSON(in)))
	assert.Equal(t, map[string]string{}, utils.JSONToMap(nil))
}
