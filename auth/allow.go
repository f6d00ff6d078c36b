package auth

// AllowAll permits every client and every topic
type AllowAll struct{}

var _ Provider = AllowAll{}

// Password always allows
func (AllowAll) Password(string, string, []byte) Status {
	return StatusAllow
}

// ACL always allows
func (AllowAll) ACL(string, string, string, AccessType) Status {
	return StatusAllow
}
