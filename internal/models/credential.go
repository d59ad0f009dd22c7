package models

import "encoding/json"

const redacted = "[REDACTED]"

// Credential is a per-request secret. It is never persisted; callers Wipe it
// once the work it authorizes has finished.
type Credential struct {
	b []byte
}

func NewCredential(s string) *Credential {
	return &Credential{b: []byte(s)}
}

func (c *Credential) Empty() bool {
	return c == nil || len(c.b) == 0
}

// Reveal returns the secret as a string. Only transports call this.
func (c *Credential) Reveal() string {
	if c == nil {
		return ""
	}
	return string(c.b)
}

func (c *Credential) Bytes() []byte {
	if c == nil {
		return nil
	}
	return c.b
}

// Wipe zeroes the backing bytes.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	for i := range c.b {
		c.b[i] = 0
	}
	c.b = nil
}

func (c *Credential) String() string   { return redacted }
func (c *Credential) GoString() string { return redacted }

func (c *Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}
