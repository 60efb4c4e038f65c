package password

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correcthorsebattery")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !Verify(hash, "correcthorsebattery") {
		t.Error("Verify should succeed for the original password")
	}
	if Verify(hash, "wrongpassword") {
		t.Error("Verify should fail for a different password")
	}
}

func TestValidateLengthBounds(t *testing.T) {
	cases := []struct {
		name    string
		pw      string
		wantErr error
	}{
		{"7 chars rejected", "abcdefg", ErrTooShort},
		{"8 chars accepted", "abcdefgh", nil},
		{"72 chars accepted", stringOfLen(72), nil},
		{"73 chars rejected", stringOfLen(73), ErrTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.pw)
			if err != tc.wantErr {
				t.Errorf("Validate(%q) = %v, want %v", tc.pw, err, tc.wantErr)
			}
		})
	}
}

func TestVerifyOrDummy(t *testing.T) {
	hash, _ := Hash("realpassword123")

	if !VerifyOrDummy(hash, true, "realpassword123") {
		t.Error("expected true for a found account with the correct password")
	}
	if VerifyOrDummy(hash, true, "wrongpassword") {
		t.Error("expected false for a found account with the wrong password")
	}
	if VerifyOrDummy("", false, "anything") {
		t.Error("expected false when the account was not found")
	}
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
