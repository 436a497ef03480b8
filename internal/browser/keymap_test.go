// File: internal/browser/keymap_test.go
package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		key      string
		wantKey  string
		wantCode string
		wantVK   int64
		wantMod  input.Modifier
	}{
		{name: "modifier", key: "ctrl", wantKey: "Control", wantCode: "ControlLeft", wantVK: 17, wantMod: input.ModifierCtrl},
		{name: "case_insensitive", key: "CTRL", wantKey: "Control", wantCode: "ControlLeft", wantVK: 17, wantMod: input.ModifierCtrl},
		{name: "meta_alias", key: "cmd", wantKey: "Meta", wantCode: "MetaLeft", wantVK: 91, wantMod: input.ModifierMeta},
		{name: "named_key", key: "enter", wantKey: "Enter", wantCode: "Enter", wantVK: 13},
		{name: "arrow", key: "down", wantKey: "ArrowDown", wantCode: "ArrowDown", wantVK: 40},
		{name: "function_key", key: "f5", wantKey: "F5", wantCode: "F5", wantVK: 116},
		{name: "printable_fallback", key: "a", wantKey: "a", wantCode: "KeyA", wantVK: 65},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			def, err := lookupKey(tc.key)
			require.NoError(t, err)

			assert.Equal(t, tc.wantKey, def.Key)
			assert.Equal(t, tc.wantCode, def.Code)
			assert.Equal(t, tc.wantVK, def.WindowsVirtualKeyCode)
			assert.Equal(t, tc.wantMod, def.Modifier)
		})
	}

	t.Run("unknown_name", func(t *testing.T) {
		t.Parallel()

		_, err := lookupKey("bogus")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown key "bogus"`)
	})
}
