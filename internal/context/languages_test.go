package context

import "testing"

func TestFenceLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"/abs/dir/app.rb", "ruby"},
		{"server.py", "python"},
		{"index.mjs", "javascript"},
		{"component.tsx", "tsx"},
		{"header.h", "c"},
		{"header.hpp", "cpp"},
		{"deploy.sh", "bash"},
		{"config.yml", "yaml"},
		{"README.MD", "markdown"},
		{"schema.gql", "graphql"},
		{"build/Dockerfile", "dockerfile"},
		{"Makefile", "makefile"},
		{"notes.txt", ""},
		{"LICENSE", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FenceLanguage(tt.path); got != tt.want {
				t.Errorf("FenceLanguage(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
