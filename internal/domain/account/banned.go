package account

import "strings"

// BannedPasswords are refused by the password change form.
var BannedPasswords = []string{
	"password",
	"password1",
	"password123",
	"passw0rd",
	"p@ssw0rd",
	"12345678",
	"123456789",
	"1234567890",
	"87654321",
	"qwerty123",
	"qwertyuiop",
	"abc12345",
	"letmein1",
	"welcome1",
	"welcome123",
	"iloveyou",
	"sunshine",
	"princess",
	"football",
	"baseball",
	"monkey123",
	"trustno1",
	"changeme",
	"hospital",
	"hospital1",
	"nhs12345",
	"doctor123",
	"nurse123",
	"patient1",
	"tracker1",
}

var banned = func() map[string]bool {
	m := make(map[string]bool, len(BannedPasswords))
	for _, p := range BannedPasswords {
		m[p] = true
	}
	return m
}()

// IsBanned reports whether password is on the banned list, ignoring case.
func IsBanned(password string) bool {
	return banned[strings.ToLower(password)]
}
