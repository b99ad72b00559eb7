package common

// Header names of the upload wire protocol.
const (
	HeaderFileName    = "X-File-Name"
	HeaderChunkIndex  = "X-Chunk-Index"
	HeaderSessionID   = "X-Session-Id"
	HeaderKeyID       = "X-Key-Id"
	HeaderWrappedKey  = "X-Wrapped-Key"
	HeaderNonce       = "X-Nonce"
	HeaderTotalChunks = "X-Total-Chunks"
)

// APIKeyEnvVar is the environment variable the client consults for the
// upload API key before prompting.
const APIKeyEnvVar = "INDEXCP_API_KEY"
