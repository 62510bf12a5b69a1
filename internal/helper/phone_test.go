package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"local eight digits get prefix", "22123456", "21622123456"},
		{"local with separators", "22 123-456", "21622123456"},
		{"plus keeps digits only", "+33 6 12 34 56 78", "33612345678"},
		{"plus eight digits no prefix", "+22123456", "22123456"},
		{"already prefixed eight digits", "21612345", "21612345"},
		{"full international without plus", "21622123456", "21622123456"},
		{"short number untouched", "1234567", "1234567"},
		{"garbage", "abc", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeNumber(tc.raw, "216"))
		})
	}
}

func TestNormalizeNumberWithoutCountryCode(t *testing.T) {
	assert.Equal(t, "22123456", NormalizeNumber("22123456", ""))
}

func TestExtractPhoneFromJID(t *testing.T) {
	assert.Equal(t, "21622123456", ExtractPhoneFromJID("21622123456:43@s.whatsapp.net"))
	assert.Equal(t, "21622123456", ExtractPhoneFromJID("21622123456@s.whatsapp.net"))
	assert.Equal(t, "plain", ExtractPhoneFromJID("plain"))
}
