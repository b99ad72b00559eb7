// Package uploader drives a buffered file's transfer to completion: resume
// via the receiver's status query, encrypt + transmit missing chunks with
// retry and backoff, then finalize and purge the local buffer.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/indexcp/indexcp/internal/client/buffer"
	"github.com/indexcp/indexcp/internal/client/keycache"
	"github.com/indexcp/indexcp/internal/client/transport"
	"github.com/indexcp/indexcp/internal/common"
	"github.com/indexcp/indexcp/internal/cryptox"
	"github.com/indexcp/indexcp/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Config tunes the retry and concurrency behavior of one orchestrator.
type Config struct {
	// MaxAttempts is the total number of transmission attempts per chunk,
	// including the first one.
	MaxAttempts uint64

	// InitialDelay is the first backoff delay; it doubles on each
	// subsequent attempt.
	InitialDelay time.Duration

	// Workers bounds the number of chunks in flight for one file.
	Workers int
}

// Orchestrator uploads buffered files. The local buffer is an optimization
// for ordering and skip; the receiver's ledger is the source of truth for
// completion, so a lost local write never causes data loss or re-upload.
type Orchestrator struct {
	buffer *buffer.Service
	client transport.Client
	keys   *keycache.Cache
	log    logging.Logger
	cfg    Config
}

func New(buf *buffer.Service, client transport.Client, keys *keycache.Cache, log logging.Logger, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{buffer: buf, client: client, keys: keys, log: log, cfg: cfg}
}

// session holds the volatile per-stream encryption context. The plaintext
// key lives only here for the duration of the upload.
type session struct {
	id      string
	keyID   string
	key     []byte
	wrapped []byte
}

// Upload transfers one file and finalizes it. Failures leave the buffer and
// the receiver's ledger consistent: re-invoking Upload resumes where the
// previous run stopped.
func (o *Orchestrator) Upload(ctx context.Context, fileID string) error {
	total, err := o.buffer.Count(ctx, fileID)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if total == 0 {
		// Nothing buffered under this id: either an unknown file or one whose
		// upload already completed and was purged. Finalizing anyway would ask
		// the receiver to assemble zero chunks over an existing file.
		return fmt.Errorf("%w: no chunks buffered for %s", common.ErrNotFound, fileID)
	}

	sess, err := o.newSession(ctx)
	if err != nil {
		return err
	}

	if err := o.uploadPass(ctx, fileID, sess); err != nil {
		return err
	}

	if err := o.client.Complete(ctx, fileID, sess.id, uint64(total)); err != nil {
		if !errors.Is(err, common.ErrIncompleteTransfer) {
			return err
		}
		// The receiver is missing chunks we believed uploaded. Re-resolve
		// the received set and retransmit the difference once.
		o.log.Warn(ctx, "finalize reported incomplete transfer, re-resolving", "file", fileID)
		if err := o.uploadPass(ctx, fileID, sess); err != nil {
			return err
		}
		if err := o.client.Complete(ctx, fileID, sess.id, uint64(total)); err != nil {
			return err
		}
	}

	if err := o.buffer.PurgeUploaded(ctx, fileID); err != nil {
		return fmt.Errorf("purge uploaded: %w", err)
	}

	o.log.Info(ctx, "upload complete", "file", fileID, "chunks", total)
	return nil
}

// SendAll uploads every file currently in the buffer, in order. The first
// failing file stops the run; earlier files stay completed and the failing
// one stays resumable.
func (o *Orchestrator) SendAll(ctx context.Context) error {
	files, err := o.buffer.Files(ctx)
	if err != nil {
		return fmt.Errorf("list buffered files: %w", err)
	}
	if len(files) == 0 {
		o.log.Info(ctx, "no buffered files to upload")
		return nil
	}

	for _, fileID := range files {
		if err := o.Upload(ctx, fileID); err != nil {
			return fmt.Errorf("upload %s: %w", fileID, err)
		}
	}
	return nil
}

// uploadPass transmits every pending chunk the receiver does not already
// have. Chunks are dispatched in ascending index order through a bounded
// worker group; acceptance is commutative per chunk, so bounded parallelism
// does not affect correctness.
func (o *Orchestrator) uploadPass(ctx context.Context, fileID string, sess *session) error {
	received := o.receivedSet(ctx, fileID)

	pending, err := o.buffer.ListPending(ctx, fileID)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, c := range pending {
		if received[c.Index] {
			// Already on the receiver: only local bookkeeping remains.
			if err := o.buffer.MarkUploaded(ctx, c.ID); err != nil {
				o.log.Warn(ctx, "failed to mark skipped chunk uploaded", "chunk", c.ID, "error", err)
			}
			o.log.Debug(ctx, "skipping chunk already received", "file", fileID, "index", c.Index)
			continue
		}

		g.Go(func() error {
			if err := o.sendChunk(ctx, fileID, sess, c); err != nil {
				return err
			}
			// The receiver acknowledged the chunk; a failed local mark is
			// harmless because the next resume consults the ledger.
			if err := o.buffer.MarkUploaded(ctx, c.ID); err != nil {
				o.log.Warn(ctx, "failed to mark chunk uploaded", "chunk", c.ID, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// sendChunk encrypts and transmits one chunk, retrying transient transport
// failures with exponential backoff. Retransmissions carry identical
// nonce/ciphertext bytes, so the receiver can dedup them safely.
func (o *Orchestrator) sendChunk(ctx context.Context, fileID string, sess *session, c *buffer.Chunk) error {
	aad := cryptox.AssociatedData(sess.id, fileID, c.Index)
	nonce, ciphertext, err := cryptox.EncryptChunk(sess.key, fileID, c.Index, c.Payload, aad)
	if err != nil {
		return fmt.Errorf("encrypt chunk %d: %w", c.Index, err)
	}

	req := &transport.UploadRequest{
		FileKey:    fileID,
		Index:      c.Index,
		SessionID:  sess.id,
		KeyID:      sess.keyID,
		WrappedKey: sess.wrapped,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}

	backoff := retry.WithMaxRetries(o.cfg.MaxAttempts-1, retry.NewExponential(o.cfg.InitialDelay))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := o.client.UploadChunk(ctx, req)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrTransientTransport) {
			o.log.Warn(ctx, "transient chunk upload failure, will retry",
				"file", fileID, "index", c.Index, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		// Authentication or validation rejections are fatal for the file.
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrRejected) {
			// A rejection can mean the receiver rotated its keypair inside the
			// cache TTL; drop the cached key so the next upload fetches the
			// current one instead of failing until expiry.
			o.keys.Invalidate()
		}
		return fmt.Errorf("chunk %d: %w", c.Index, err)
	}

	o.log.Debug(ctx, "chunk acknowledged", "file", fileID, "index", c.Index, "attempts", attempt)
	return nil
}

// receivedSet resolves the receiver's accepted indices. The query is
// best-effort: a failure means "upload everything", never "skip everything" —
// redundant sends are deduped by the receiver's ledger.
func (o *Orchestrator) receivedSet(ctx context.Context, fileID string) map[uint64]bool {
	indices, err := o.client.Status(ctx, fileID)
	if err != nil {
		o.log.Warn(ctx, "status query failed, proceeding with full upload", "file", fileID, "error", err)
		return nil
	}

	set := make(map[uint64]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	if len(set) > 0 {
		o.log.Info(ctx, "resume detected", "file", fileID, "received", len(set))
	}
	return set
}

// newSession generates a fresh symmetric key for this stream and wraps it
// with the receiver's public key. The wrapped form travels with every packet
// so the receiver can re-establish the session after a restart.
func (o *Orchestrator) newSession(ctx context.Context) (*session, error) {
	keyID, pub, err := o.keys.Get(ctx)
	if err != nil {
		return nil, err
	}

	key, err := cryptox.GenerateSessionKey()
	if err != nil {
		return nil, err
	}

	wrapped, err := cryptox.WrapSessionKey(pub, key)
	if err != nil {
		return nil, err
	}

	return &session{id: uuid.NewString(), keyID: keyID, key: key, wrapped: wrapped}, nil
}
