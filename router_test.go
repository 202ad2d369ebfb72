package axon

import "testing"

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		s    State
		want string
	}{
		{
			name: "fresh input goes to planner",
			s: State{
				Messages: []ChatMessage{UserMessage("hi")},
				MaxLoops: 10,
			},
			want: nodePlanner,
		},
		{
			name: "pending calls go to tools",
			s: State{
				Messages: []ChatMessage{
					UserMessage("hi"),
					AssistantMessage("", call("c1", "echo", `{}`)),
				},
				Loops:    1,
				MaxLoops: 10,
			},
			want: nodeTools,
		},
		{
			name: "completed batch re-enters planner",
			s: State{
				Messages: []ChatMessage{
					AssistantMessage("", call("c1", "echo", `{}`)),
					ToolResultMessage("c1", "ok"),
				},
				Loops:    1,
				MaxLoops: 10,
			},
			want: nodePlanner,
		},
		{
			name: "content-only assistant finalizes",
			s: State{
				Messages: []ChatMessage{UserMessage("hi"), AssistantMessage("hello")},
				Loops:    1,
				MaxLoops: 10,
			},
			want: nodeFinalizer,
		},
		{
			name: "budget exhausted forces finalizer",
			s: State{
				Messages: []ChatMessage{ToolResultMessage("c1", "ok")},
				Loops:    10,
				MaxLoops: 10,
			},
			want: nodeFinalizer,
		},
		{
			name: "budget exhausted skips pending calls",
			s: State{
				Messages: []ChatMessage{
					AssistantMessage("", call("c1", "echo", `{}`)),
				},
				Loops:    10,
				MaxLoops: 10,
			},
			want: nodeFinalizer,
		},
		{
			name: "one loop left still runs tools",
			s: State{
				Messages: []ChatMessage{
					AssistantMessage("", call("c1", "echo", `{}`)),
				},
				Loops:    9,
				MaxLoops: 10,
			},
			want: nodeTools,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := route(&tt.s); got != tt.want {
				t.Errorf("route() = %q, want %q", got, tt.want)
			}
		})
	}
}
