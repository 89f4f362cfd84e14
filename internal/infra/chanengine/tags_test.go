package chanengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"単一タイプ", "[<BSP_TYPE.T1P: '1p'>]", []string{"1p"}},
		{"複数タイプ", "[<BSP_TYPE.T2: '2'>, <BSP_TYPE.T3A: '3a'>]", []string{"2", "3a"}},
		{"重複は1つにまとめる", "['2', '2', '3b']", []string{"2", "3b"}},
		{"引用符なしはそのまま", "2s", []string{"2s"}},
		{"空文字", "", nil},
		{"空白のみ", "  ", nil},
		{"空の引用符は無視", "''", []string{"''"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTags(tt.raw))
		})
	}
}
