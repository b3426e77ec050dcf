package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/scamshield/internal/failure"
)

// inputAs asserts the stage input type.
func inputAs[T any](stage string, in any) (T, error) {
	v, ok := in.(T)
	if !ok {
		var zero T
		return zero, failure.Fatal(stage, fmt.Errorf("unexpected input type %T", in))
	}
	return v, nil
}

// stringList decodes either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	one = strings.TrimSpace(one)
	if one == "" {
		*l = nil
		return nil
	}
	*l = []string{one}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func pretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
