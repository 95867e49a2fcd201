package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{in: "en", want: English},
		{in: "FR", want: French},
		{in: " es ", want: Spanish},
		{in: "fr-CA", want: French},
		{in: "ja_JP", want: Japanese},
		{in: "de", want: German},
		{in: "ge", want: German},
		{in: "xx", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLanguage(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLanguage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLanguage_NameAndProviderCode(t *testing.T) {
	for _, l := range Languages() {
		assert.True(t, l.Valid(), l)
		assert.NotEmpty(t, l.Name(), l)
	}
	assert.Equal(t, "french", French.Name())
	assert.Equal(t, "de", German.ProviderCode())
	assert.Equal(t, "hi", Hindi.ProviderCode())
	assert.False(t, Language("xx").Valid())
}
