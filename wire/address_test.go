package wire

import "testing"

func TestParseAddressRoundTrip(t *testing.T) {
	addr, err := ParseAddress("15551234567:3@user.lattica.net")
	if err != nil {
		t.Fatalf("Failed to parse address: %v", err)
	}
	if addr.User != "15551234567" {
		t.Errorf("Expected user 15551234567, got %q", addr.User)
	}
	if addr.Device != 3 {
		t.Errorf("Expected device 3, got %d", addr.Device)
	}
	if addr.Host != HostUser {
		t.Errorf("Expected host %q, got %q", HostUser, addr.Host)
	}
	if addr.String() != "15551234567:3@user.lattica.net" {
		t.Errorf("Round trip mismatch: %q", addr.String())
	}
}

func TestParseAddressNoDevice(t *testing.T) {
	addr, err := ParseAddress("98142@lid.lattica.net")
	if err != nil {
		t.Fatalf("Failed to parse address: %v", err)
	}
	if addr.Device != 0 {
		t.Errorf("Expected device 0, got %d", addr.Device)
	}
	if addr.String() != "98142@lid.lattica.net" {
		t.Errorf("Zero device must be omitted, got %q", addr.String())
	}
}

func TestParseAddressInvalid(t *testing.T) {
	for _, raw := range []string{"", "nohost", "@user.lattica.net", "a:b@user.lattica.net", "a:999@user.lattica.net"} {
		if _, err := ParseAddress(raw); err == nil {
			t.Errorf("Expected parse error for %q", raw)
		}
	}
}

func TestAddressClassification(t *testing.T) {
	phone, _ := ParseAddress("15551234567@user.lattica.net")
	lid, _ := ParseAddress("98142@lid.lattica.net")
	group, _ := ParseAddress("grp-77@g.lattica.net")
	status, _ := ParseAddress("status@broadcast.lattica.net")
	list, _ := ParseAddress("bl-12@broadcast.lattica.net")
	channel, _ := ParseAddress("news-9@channel.lattica.net")
	bot, _ := ParseAddress("assistant@bot.lattica.net")

	if !phone.IsPhone() || phone.IsLID() || !phone.IsUserAddress() {
		t.Error("Phone address misclassified")
	}
	if !lid.IsLID() || lid.IsPhone() || !lid.IsUserAddress() {
		t.Error("LID address misclassified")
	}
	if !group.IsGroup() || group.IsUserAddress() {
		t.Error("Group address misclassified")
	}
	if !status.IsStatusBroadcast() || !status.IsBroadcast() {
		t.Error("Status broadcast misclassified")
	}
	if list.IsStatusBroadcast() || !list.IsBroadcast() {
		t.Error("Broadcast list misclassified")
	}
	if !channel.IsChannel() {
		t.Error("Channel address misclassified")
	}
	if !bot.IsBot() {
		t.Error("Bot address misclassified")
	}
}

func TestSameUserIgnoresDevice(t *testing.T) {
	a, _ := ParseAddress("15551234567:2@user.lattica.net")
	b, _ := ParseAddress("15551234567:7@user.lattica.net")
	if !a.SameUser(b) {
		t.Error("SameUser must ignore device qualifiers")
	}
	if a.Equal(b) {
		t.Error("Equal must not ignore device qualifiers")
	}
	if !a.Bare().Equal(b.Bare()) {
		t.Error("Bare addresses of the same user must be equal")
	}
}
