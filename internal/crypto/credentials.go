package crypto

// CredentialEnvelope is the at-rest encoding of one VideoSource's stream
// credentials: a per-record DEK wrapped by the keyring's active master
// key, plus the credential payload sealed under that DEK. Every field is
// base64-friendly ([]byte marshals through encoding/json that way) so the
// whole envelope round-trips through a single jsonb column.
type CredentialEnvelope struct {
	MasterKID     string `json:"masterKid"`
	DEKNonce      []byte `json:"dekNonce"`
	DEKCiphertext []byte `json:"dekCiphertext"`
	DEKTag        []byte `json:"dekTag"`

	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

type credentialPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialAAD builds the additional authenticated data binding one
// VideoSource's credential envelope to its owning record, so a
// cred_envelope value copied onto a different row fails AEAD
// verification instead of silently decrypting as that row's secret.
func CredentialAAD(sourceID string) []byte {
	return []byte(sourceID + ":video_source_credential_v1")
}
