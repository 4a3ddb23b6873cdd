package pbx

import (
	"crypto/md5" //nolint:gosec // the PBX login protocol mandates MD5
	"encoding/hex"
)

// PasswordDigest computes the credential sent by the password login:
// md5hex(user ":" challenge ":" password).
func PasswordDigest(user, challenge, password string) string {
	return md5Hex(user + ":" + challenge + ":" + password)
}

// TokenDigest computes the token sent by the challenge auto-login:
// md5hex(challenge sharedSecret).
func TokenDigest(challenge, sharedSecret string) string {
	return md5Hex(challenge + sharedSecret)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
