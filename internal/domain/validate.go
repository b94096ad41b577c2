package domain

import "strings"

// Normalize trims every field and lowercases the email. The lowercased,
// trimmed email is the value stored and compared for uniqueness; the original
// system compared raw strings, which let "A@x.edu" and "a@x.edu" register
// twice.
func (r RegistrationRequest) Normalize() RegistrationRequest {
	return RegistrationRequest{
		Name:  strings.TrimSpace(r.Name),
		Email: strings.ToLower(strings.TrimSpace(r.Email)),
		Phone: strings.TrimSpace(r.Phone),
	}
}

// Validate checks a normalized request against the event's registration
// policy. It performs no I/O; a failure here guarantees nothing was written.
func (r RegistrationRequest) Validate(ev Event) error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if !validEmail(r.Email, ev.EmailDomain) {
		return ErrInvalidEmail
	}
	if ev.RequirePhone || r.Phone != "" {
		if ev.RequirePhone && r.Phone == "" {
			return ErrInvalidPhone
		}
		if r.Phone != "" && !validPhone(r.Phone) {
			return ErrInvalidPhone
		}
	}
	return nil
}

func validEmail(email, domainSuffix string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if !strings.Contains(email[at+1:], ".") {
		return false
	}
	if domainSuffix != "" && !strings.HasSuffix(email, strings.ToLower(domainSuffix)) {
		return false
	}
	return true
}

func validPhone(phone string) bool {
	if len(phone) != 10 {
		return false
	}
	for i := 0; i < len(phone); i++ {
		if phone[i] < '0' || phone[i] > '9' {
			return false
		}
	}
	return true
}
