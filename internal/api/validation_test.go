package api

import (
	"strings"
	"testing"
)

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "valid",
			body: `{"email":"alice@example.com","username":"alice","password":"pw123","confirmPassword":"pw123"}`,
		},
		{
			name:    "missing field",
			body:    `{"username":"alice","password":"pw123","confirmPassword":"pw123"}`,
			wantErr: "email is required",
		},
		{
			name:    "bad email",
			body:    `{"email":"nope","username":"alice","password":"pw123","confirmPassword":"pw123"}`,
			wantErr: "invalid email format",
		},
		{
			name:    "username too short",
			body:    `{"email":"alice@example.com","username":"a","password":"pw123","confirmPassword":"pw123"}`,
			wantErr: "username must be at least 2",
		},
		{
			name:    "password mismatch",
			body:    `{"email":"alice@example.com","username":"alice","password":"pw123","confirmPassword":"pw999"}`,
			wantErr: "confirmpassword must match password",
		},
		{
			name:    "unknown field",
			body:    `{"email":"alice@example.com","username":"alice","password":"pw123","confirmPassword":"pw123","admin":true}`,
			wantErr: "invalid JSON body",
		},
		{
			name:    "trailing garbage",
			body:    `{"email":"alice@example.com","username":"alice","password":"pw123","confirmPassword":"pw123"}{}`,
			wantErr: "invalid JSON body",
		},
		{
			name:    "not JSON",
			body:    `email=alice`,
			wantErr: "invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req RegisterRequest
			err := decodeAndValidate(strings.NewReader(tt.body), &req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("decodeAndValidate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("decodeAndValidate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeDisplayString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"alice", "alice"},
		{"  alice  ", "alice"},
		{"<script>alert(1)</script>alice", "alice"},
		{"<b>Basil</b> pot", "Basil pot"},
	}
	for _, tt := range tests {
		if got := sanitizeDisplayString(tt.in); got != tt.want {
			t.Errorf("sanitizeDisplayString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
