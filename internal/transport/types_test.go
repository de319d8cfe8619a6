package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatTarget(t *testing.T) {
	tests := []struct {
		raw     string
		want    ChatTarget
		wantErr bool
	}{
		{raw: "-1001234567890", want: ChatTarget{ChatID: -1001234567890}},
		{raw: " 42 ", want: ChatTarget{ChatID: 42}},
		{raw: "-100123/7", want: ChatTarget{ChatID: -100123, ThreadID: 7}},
		{raw: "", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "12/x", wantErr: true},
		{raw: "12/-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseChatTarget(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatTargetString(t *testing.T) {
	assert.Equal(t, "42", ChatTarget{ChatID: 42}.String())
	assert.Equal(t, "-100/3", ChatTarget{ChatID: -100, ThreadID: 3}.String())
}
