package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/screa/vanity-search/internal/config"
)

func TestCompile(t *testing.T) {
	rules := Compile([]config.PatternConfig{
		{Pattern: "a", MinLength: 3},
		{Pattern: "", MinLength: 2},
		{Pattern: "xy", MinLength: 2},
	})
	assert.Equal(t, []Rule{
		{Unit: []byte("a"), MinRepeat: 3},
		{Unit: []byte("xy"), MinRepeat: 2},
	}, rules)

	assert.Nil(t, Compile(nil))
	assert.Nil(t, Compile([]config.PatternConfig{{Pattern: "", MinLength: 1}}))
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		addr   string
		prefix string
		want   bool
	}{
		{"exact start", "SoLAbc", "SoL", true},
		{"case sensitive", "SoLAbc", "sol", false},
		{"empty prefix", "SoLAbc", "", true},
		{"whole address", "SoL", "SoL", true},
		{"longer than address", "So", "SoL", false},
		{"mismatch later byte", "SoXAbc", "SoL", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPrefix([]byte(tt.addr), []byte(tt.prefix)))
		})
	}
}

func TestValidatePrefix(t *testing.T) {
	assert.NoError(t, ValidatePrefix("Sol123"))
	assert.NoError(t, ValidatePrefix(""))
	assert.Error(t, ValidatePrefix("S0l"))
	assert.Error(t, ValidatePrefix("Il"))
	assert.Error(t, ValidatePrefix("ab-"))
}

func TestFindRare(t *testing.T) {
	tests := []struct {
		name   string
		addr   string
		rules  []Rule
		want   string
		wantOK bool
	}{
		{
			name:   "first qualifying run wins over longer later run",
			addr:   "aaabccaaaa",
			rules:  []Rule{{Unit: []byte("a"), MinRepeat: 3}},
			want:   "aaa",
			wantOK: true,
		},
		{
			name:   "run reported at full length",
			addr:   "baaaaab",
			rules:  []Rule{{Unit: []byte("a"), MinRepeat: 3}},
			want:   "aaaaa",
			wantOK: true,
		},
		{
			name:   "trailing run counted at end of string",
			addr:   "bcbaaaa",
			rules:  []Rule{{Unit: []byte("a"), MinRepeat: 4}},
			want:   "aaaa",
			wantOK: true,
		},
		{
			name:   "run too short",
			addr:   "aabaab",
			rules:  []Rule{{Unit: []byte("a"), MinRepeat: 3}},
			wantOK: false,
		},
		{
			name:   "maximal tiling at first offset",
			addr:   "xyxyxyz",
			rules:  []Rule{{Unit: []byte("xy"), MinRepeat: 2}},
			want:   "xyxyxy",
			wantOK: true,
		},
		{
			name:   "tiling after a failed attempt",
			addr:   "xyzxyxyxy",
			rules:  []Rule{{Unit: []byte("xy"), MinRepeat: 3}},
			want:   "xyxyxy",
			wantOK: true,
		},
		{
			name:   "offset shifted tiling",
			addr:   "axyxybc",
			rules:  []Rule{{Unit: []byte("xy"), MinRepeat: 2}},
			want:   "xyxy",
			wantOK: true,
		},
		{
			name:   "tiles must not overlap",
			addr:   "aaaaab",
			rules:  []Rule{{Unit: []byte("aa"), MinRepeat: 3}},
			wantOK: false,
		},
		{
			name:   "address shorter than unit times min",
			addr:   "xyxy",
			rules:  []Rule{{Unit: []byte("xy"), MinRepeat: 3}},
			wantOK: false,
		},
		{
			name: "rule order beats match length",
			addr: "bbbbbbbaaa",
			rules: []Rule{
				{Unit: []byte("a"), MinRepeat: 3},
				{Unit: []byte("b"), MinRepeat: 3},
			},
			want:   "aaa",
			wantOK: true,
		},
		{
			name: "falls through to later rule",
			addr: "qqqqxyxy",
			rules: []Rule{
				{Unit: []byte("z"), MinRepeat: 2},
				{Unit: []byte("xy"), MinRepeat: 2},
			},
			want:   "xyxy",
			wantOK: true,
		},
		{
			name:   "no rules",
			addr:   "aaaaaaaa",
			rules:  nil,
			wantOK: false,
		},
		{
			name:   "zero minimum needs at least one occurrence",
			addr:   "bcd",
			rules:  []Rule{{Unit: []byte("a"), MinRepeat: 0}},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindRare([]byte(tt.addr), tt.rules)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func BenchmarkFindRare(b *testing.B) {
	addr := []byte("7EcDhSYGxXyscszYEp35KHN8vvw3svAuLKTzXwCFLtV")
	rules := Compile([]config.PatternConfig{
		{Pattern: "1", MinLength: 6},
		{Pattern: "z", MinLength: 6},
		{Pattern: "ab", MinLength: 4},
	})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		FindRare(addr, rules)
	}
}
