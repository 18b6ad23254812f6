package pairing

import (
	"bytes"
	"fmt"

	perrors "github.com/Iron-Ham/pairlink/internal/errors"
	"howett.net/plist"
)

// Credential is a loaded pairing credential. Data is the opaque file
// content; the identifier fields are decoded from it when possible.
type Credential struct {
	Path string
	Data []byte

	HostID     string
	SystemBUID string
	UDID       string
}

// HasHostID reports whether the credential names the host it pairs with.
func (c Credential) HasHostID() bool {
	return c.HostID != ""
}

// record is the subset of a pairing record we read. Unknown keys
// (certificates, escrow bag) are ignored.
type record struct {
	HostID         string `plist:"HostID"`
	SystemBUID     string `plist:"SystemBUID"`
	UDID           string `plist:"UDID"`
	WiFiMACAddress string `plist:"WiFiMACAddress"`
}

// Inspect decodes data as a property list and returns a Credential with the
// identifier fields filled in. Data that is not a dictionary property list
// yields an error wrapping ErrInvalidCredentialFile.
func Inspect(data []byte) (Credential, error) {
	cred := Credential{Data: data}
	if len(bytes.TrimSpace(data)) == 0 {
		return cred, fmt.Errorf("%w: empty file", perrors.ErrInvalidCredentialFile)
	}

	var rec record
	if _, err := plist.Unmarshal(data, &rec); err != nil {
		return cred, fmt.Errorf("%w: %w", perrors.ErrInvalidCredentialFile, err)
	}

	cred.HostID = rec.HostID
	cred.SystemBUID = rec.SystemBUID
	cred.UDID = rec.UDID
	return cred, nil
}
