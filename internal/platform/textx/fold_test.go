package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldStripsVietnameseDiacritics(t *testing.T) {
	assert.Equal(t, "ha noi", Fold("Hà Nội"))
	assert.Equal(t, "toan cong ty", Fold("  Toàn Công Ty "))
	assert.Equal(t, "doanh thu", Fold("Đoanh thu"))
	assert.Equal(t, "uc", Fold("ÚC"))
}

func TestMatchAll(t *testing.T) {
	tokens := Tokens("noi  1.1us")
	assert.Equal(t, []string{"noi", "1.1us"}, tokens)
	assert.True(t, MatchAll(tokens, "Hà Nội", "1.1US"))
	assert.False(t, MatchAll(tokens, "HCM", "1.1US"))
	assert.True(t, MatchAll(nil, "anything"))
}
