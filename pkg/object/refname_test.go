package object

import (
	"errors"
	"testing"
)

func TestCheckRefName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"refs/heads/main", true},
		{"refs/heads/feature/x-1", true},
		{"refs/tags/v1.0", true},
		{"refs/remotes/origin/main", true},
		{"HEAD", false},
		{"heads/main", false},
		{"/refs/heads/main", false},
		{"refs/heads/", false},
		{"refs//heads", false},
		{"refs/tags/../../../escaped", false},
		{"refs/heads/a..b", false},
		{"refs/heads/.hidden", false},
		{"refs/heads/main.lock", false},
		{"refs/heads/main.", false},
		{"refs/heads/a@{1}", false},
		{"refs/heads/has space", false},
		{"refs/heads/tab\tname", false},
		{"refs/heads/a:b", false},
		{"refs/heads/a\\b", false},
	}
	for _, tt := range tests {
		err := CheckRefName(tt.name)
		if tt.ok && err != nil {
			t.Errorf("CheckRefName(%q) = %v, want nil", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrFormat) {
			t.Errorf("CheckRefName(%q) = %v, want ErrFormat", tt.name, err)
		}
	}
}
