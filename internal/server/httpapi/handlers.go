// Package httpapi is the receiver's HTTP surface: key distribution, chunk
// upload, status queries and transfer finalization.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/cryptox"
	"github.com/indexcp/indexcp/internal/logging"
	"github.com/indexcp/indexcp/internal/server/keys"
	"github.com/indexcp/indexcp/internal/server/ledger"
	"github.com/indexcp/indexcp/internal/server/session"
)

// maxChunkBody caps the request body read on /upload. Encrypted chunks carry
// a 16-byte GCM tag on top of the plaintext, so this comfortably covers any
// sane client chunk size.
const maxChunkBody = 64 << 20

// API holds the handler dependencies.
type API struct {
	ledger   *ledger.Service
	sessions *session.Registry
	receiver *keys.Receiver
	log      logging.Logger
}

func NewAPI(svc *ledger.Service, sessions *session.Registry, receiver *keys.Receiver, log logging.Logger) *API {
	return &API{ledger: svc, sessions: sessions, receiver: receiver, log: log}
}

// Routes builds the full handler. The key endpoint serves public material
// and stays open; everything else sits behind bearer auth.
func (a *API) Routes(apiKey string) http.Handler {
	authed := http.NewServeMux()
	authed.HandleFunc("POST /upload", a.handleUpload)
	authed.HandleFunc("GET /upload/status", a.handleStatus)
	authed.HandleFunc("POST /upload/complete", a.handleComplete)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /public-key", a.handlePublicKey)
	mux.Handle("/", authMiddleware(apiKey, authed))
	return mux
}

type publicKeyResponse struct {
	KeyID     string `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

func (a *API) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pem, err := a.receiver.PublicPEM()
	if err != nil {
		a.log.Error(r.Context(), "encode public key", "error", err)
		writeError(w, http.StatusInternalServerError, "key encoding failed")
		return
	}
	writeJSON(w, http.StatusOK, publicKeyResponse{
		KeyID:     a.receiver.KeyID,
		PublicKey: string(pem),
	})
}

type uploadResponse struct {
	Message         string `json:"message"`
	ActualFilename  string `json:"actualFilename"`
	ChunkIndex      uint64 `json:"chunkIndex"`
	AlreadyReceived bool   `json:"alreadyReceived"`
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pkt, err := parseChunkPacket(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := a.sessions.Ensure(pkt.sessionID, pkt.keyID, pkt.wrappedKey)
	if err != nil {
		a.log.Warn(ctx, "session setup failed", "session", pkt.sessionID, "error", err)
		writeError(w, http.StatusBadRequest, "session key could not be established")
		return
	}

	aad := cryptox.AssociatedData(pkt.sessionID, pkt.fileKey, pkt.index)
	payload, err := cryptox.DecryptChunk(key, pkt.nonce, pkt.ciphertext, aad)
	if err != nil {
		a.log.Warn(ctx, "chunk rejected", "file", pkt.fileKey, "index", pkt.index, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "chunk failed authentication")
		return
	}

	outcome, err := a.ledger.Accept(ctx, pkt.fileKey, pkt.index, payload)
	if err != nil {
		a.log.Error(ctx, "chunk accept failed", "file", pkt.fileKey, "index", pkt.index, "error", err)
		writeError(w, http.StatusInternalServerError, "chunk could not be recorded")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:         "Chunk " + outcome.String(),
		ActualFilename:  pkt.fileKey,
		ChunkIndex:      pkt.index,
		AlreadyReceived: outcome == ledger.Duplicate,
	})
}

type statusResponse struct {
	Filename       string   `json:"filename"`
	ReceivedChunks []uint64 `json:"receivedChunks"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	fileKey := sanitizeFileKey(r.URL.Query().Get("filename"))
	if fileKey == "" {
		writeError(w, http.StatusBadRequest, "filename query parameter is required")
		return
	}

	received, err := a.ledger.StatusOf(r.Context(), fileKey)
	if err != nil {
		a.log.Error(r.Context(), "status query failed", "file", fileKey, "error", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	if received == nil {
		received = []uint64{}
	}

	writeJSON(w, http.StatusOK, statusResponse{Filename: fileKey, ReceivedChunks: received})
}

type completeResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

func (a *API) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileKey := sanitizeFileKey(r.Header.Get(common.HeaderFileName))
	if fileKey == "" {
		writeError(w, http.StatusBadRequest, common.HeaderFileName+" header is required")
		return
	}
	total, err := strconv.ParseUint(r.Header.Get(common.HeaderTotalChunks), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, common.HeaderTotalChunks+" header is required")
		return
	}

	if err := a.ledger.Finalize(ctx, fileKey, total); err != nil {
		if errors.Is(err, common.ErrIncompleteTransfer) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		a.log.Error(ctx, "finalize failed", "file", fileKey, "error", err)
		writeError(w, http.StatusInternalServerError, "finalize failed")
		return
	}

	if sessionID := r.Header.Get(common.HeaderSessionID); sessionID != "" {
		a.sessions.Drop(sessionID)
	}

	writeJSON(w, http.StatusOK, completeResponse{
		Message:  "File transfer completed",
		Filename: fileKey,
	})
}

// chunkPacket is the parsed form of one /upload request.
type chunkPacket struct {
	fileKey    string
	index      uint64
	sessionID  string
	keyID      string
	wrappedKey []byte
	nonce      []byte
	ciphertext []byte
}

func parseChunkPacket(r *http.Request) (*chunkPacket, error) {
	fileKey := sanitizeFileKey(r.Header.Get(common.HeaderFileName))
	if fileKey == "" {
		return nil, fmt.Errorf("%s header is required", common.HeaderFileName)
	}

	index, err := strconv.ParseUint(r.Header.Get(common.HeaderChunkIndex), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s header is required", common.HeaderChunkIndex)
	}

	sessionID := r.Header.Get(common.HeaderSessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%s header is required", common.HeaderSessionID)
	}

	wrapped, err := base64.StdEncoding.DecodeString(r.Header.Get(common.HeaderWrappedKey))
	if err != nil || len(wrapped) == 0 {
		return nil, fmt.Errorf("%s header is malformed", common.HeaderWrappedKey)
	}

	nonce, err := base64.StdEncoding.DecodeString(r.Header.Get(common.HeaderNonce))
	if err != nil || len(nonce) == 0 {
		return nil, fmt.Errorf("%s header is malformed", common.HeaderNonce)
	}

	ciphertext, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBody))
	if err != nil {
		return nil, fmt.Errorf("read chunk body: %v", err)
	}
	if len(ciphertext) == 0 {
		return nil, errors.New("chunk body is empty")
	}

	return &chunkPacket{
		fileKey:    fileKey,
		index:      index,
		sessionID:  sessionID,
		keyID:      r.Header.Get(common.HeaderKeyID),
		wrappedKey: wrapped,
		nonce:      nonce,
		ciphertext: ciphertext,
	}, nil
}

// sanitizeFileKey strips any path components so a hostile filename cannot
// escape the output directory.
func sanitizeFileKey(name string) string {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
