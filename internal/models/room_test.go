package models

import "testing"

func TestRoom_PartnerOf(t *testing.T) {
	room := &Room{RoomID: "r1", UserA: "u1", UserB: "u2"}

	if got := room.PartnerOf("u1"); got != "u2" {
		t.Errorf("PartnerOf(u1) = %q, want u2", got)
	}
	if got := room.PartnerOf("u2"); got != "u1" {
		t.Errorf("PartnerOf(u2) = %q, want u1", got)
	}
	if got := room.PartnerOf("stranger"); got != "" {
		t.Errorf("PartnerOf(stranger) = %q, want empty", got)
	}
}

func TestAvatarPayload_Valid(t *testing.T) {
	tests := []struct {
		name    string
		avatar  AvatarPayload
		isValid bool
	}{
		{"dicebear", AvatarPayload{Type: "dicebear", Seed: "fox"}, true},
		{"dicebear without seed", AvatarPayload{Type: "dicebear"}, true},
		{"custom with image", AvatarPayload{Type: "custom", Mime: "image/png", Data: "aGk="}, true},
		{"custom without data", AvatarPayload{Type: "custom", Mime: "image/png"}, false},
		{"custom without mime", AvatarPayload{Type: "custom", Data: "aGk="}, false},
		{"unknown type", AvatarPayload{Type: "gravatar"}, false},
		{"empty", AvatarPayload{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.avatar.Valid(); got != tt.isValid {
				t.Errorf("Valid() = %v, want %v", got, tt.isValid)
			}
		})
	}
}
