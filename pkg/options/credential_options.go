package options

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*CredentialOptions)(nil)

// CredentialOptions is the PSK credential set installed before connecting.
type CredentialOptions struct {
	SecTag   uint32 `json:"sec-tag" mapstructure:"sec-tag"`
	Identity string `json:"identity" mapstructure:"identity"`
	// Key is hex encoded.
	Key string `json:"key" mapstructure:"key"`
}

// NewCredentialOptions returns the development credential set.
func NewCredentialOptions() *CredentialOptions {
	return &CredentialOptions{
		SecTag:   42,
		Identity: "cellink-dev",
		Key:      "000102030405060708090a0b0c0d0e0f",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *CredentialOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Identity == "" {
		errors = append(errors, fmt.Errorf("credentials.identity is required"))
	}
	if b, err := hex.DecodeString(o.Key); err != nil {
		errors = append(errors, fmt.Errorf("credentials.key must be hex: %w", err))
	} else if len(b) == 0 {
		errors = append(errors, fmt.Errorf("credentials.key is required"))
	}

	return errors
}

// AddFlags adds flags for CredentialOptions to the specified FlagSet.
func (o *CredentialOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Uint32Var(&o.SecTag, "credentials.sec-tag", o.SecTag, "Security tag the PSK is stored under.")
	fs.StringVar(&o.Identity, "credentials.identity", o.Identity, "PSK identity.")
	fs.StringVar(&o.Key, "credentials.key", o.Key, "Hex encoded PSK.")
}
