// internal/planner/fuzz_test.go
package planner

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzParse asserts the parser's two hard invariants over arbitrary input:
// every failure is one of the protocol's two error classes, and every
// success carries a normalized action type.
func FuzzParse(f *testing.F) {
	f.Add([]byte(`{"action":"click","x":1,"y":2,"reason":"seed"}`))
	f.Add([]byte("```json\n{\"action\":\"scroll\"}\n```"))
	f.Add([]byte("no json at all"))
	f.Add([]byte(`{"action":`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fdp := fuzz.NewConsumer(data)
		prefix, err := fdp.GetString()
		if err != nil {
			return
		}
		body, err := fdp.GetString()
		if err != nil {
			return
		}

		a, err := Parse(prefix + body)
		if err != nil {
			var malformed *MalformedActionError
			if !errors.Is(err, ErrUnparsableAction) && !errors.As(err, &malformed) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}

		switch a.Type {
		case ActionClick, ActionTypeText, ActionHotkey, ActionScroll, ActionWait, ActionDone, ActionError:
		default:
			t.Fatalf("parser returned unnormalized action type %q", a.Type)
		}
	})
}
