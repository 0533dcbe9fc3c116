package onchain

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// errorStringSelector is the 4-byte selector of the standard Error(string)
// revert.
var errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// friendlyRevertMessages maps the registry's custom-error names to
// user-facing remediation text.
var friendlyRevertMessages = map[string]string{
	"QuotaExceeded":         "application quota exceeded; terminate an unused application or request a quota increase",
	"Unauthorized":          "the signing account is not authorized to manage this application",
	"AppNotFound":           "no application with this id exists on the selected chain",
	"SignatureExpired":      "the delegation authorization expired before inclusion; retry the operation",
	"InvalidArtifact":       "the release artifact was rejected by the registry; check the image digest and registry name",
	"UpgradeDeadlinePassed": "the release upgrade deadline has passed; rebuild the release and retry",
}

// DecodeRevert decodes a revert payload against the registry's known
// custom-error set. The decoded error name and a user-facing message are
// returned; unknown payloads yield empty values so the raw data can be
// surfaced instead. The set of known errors is closed: decoding never
// reflects over an arbitrary schema.
func DecodeRevert(data []byte) (name, message string) {
	if len(data) < 4 {
		return "", ""
	}
	selector := data[:4]

	if bytes.Equal(selector, errorStringSelector) {
		if reason, err := abi.UnpackRevert(data); err == nil {
			return "Error", reason
		}
		return "", ""
	}

	for errName, abiErr := range appRegistryABI.Errors {
		if !bytes.Equal(abiErr.ID.Bytes()[:4], selector) {
			continue
		}

		message, ok := friendlyRevertMessages[errName]
		if !ok {
			message = errName
		}
		if args, err := abiErr.Unpack(data); err == nil {
			if list, ok := args.([]interface{}); ok && len(list) > 0 {
				message = fmt.Sprintf("%s (%v)", message, list)
			}
		}
		return errName, message
	}
	return "", ""
}
