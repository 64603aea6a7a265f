package cache

import "testing"

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "full key",
			key: Key{
				Namespace: "resource",
				Resource:  "agent",
				ID:        "7xKX9fGh",
				Filters:   map[string]string{"owner": "abc", "limit": "10"},
			},
			want: "resource:agent:7xKX9fGh:limit=10:owner=abc",
		},
		{
			name: "no filters",
			key:  Key{Namespace: "resource", Resource: "channel", ID: "ch-1"},
			want: "resource:channel:ch-1",
		},
		{
			name: "list query without id",
			key: Key{
				Namespace: "resource",
				Resource:  "message",
				Filters:   map[string]string{"channel": "ch-1"},
			},
			want: "resource:message:channel=ch-1",
		},
		{
			name: "analytics key",
			key: Key{
				Namespace: "analytics",
				Resource:  "agent_activity",
				Filters:   map[string]string{"window": "24h"},
			},
			want: "analytics:agent_activity:window=24h",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Filter order must not affect the composed key, so semantically identical
// queries collide on the same cache slot.
func TestKeyStringDeterministic(t *testing.T) {
	a := Key{Resource: "agent", Filters: map[string]string{"x": "1", "y": "2", "z": "3"}}
	b := Key{Resource: "agent", Filters: map[string]string{"z": "3", "x": "1", "y": "2"}}

	if a.String() != b.String() {
		t.Errorf("keys differ: %q vs %q", a.String(), b.String())
	}
}
